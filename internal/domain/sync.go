package domain

// Action is what a synchronization step did to a sub-resource.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// StepStatus is the outcome of one sub-resource write.
type StepStatus struct {
	Action Action `json:"action"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// EntryStatus groups the address and contact outcome for one company or business entry.
// Index is -1 for the company billing address.
type EntryStatus struct {
	Index   int        `json:"index"`
	Title   string     `json:"title"`
	Address StepStatus `json:"address"`
	Contact StepStatus `json:"contact"`
}

// Failed reports whether any step of the entry failed.
func (s EntryStatus) Failed() bool {
	return s.Address.Action == ActionFailed || s.Contact.Action == ActionFailed
}

// SyncReport is returned alongside a successful primary write so partial failures stay visible.
type SyncReport struct {
	Billing    *EntryStatus  `json:"billing,omitempty"`
	Businesses []EntryStatus `json:"businesses"`
}

// FailedCount counts entries with at least one failed step.
func (r SyncReport) FailedCount() int {
	n := 0
	if r.Billing != nil && r.Billing.Failed() {
		n++
	}
	for _, b := range r.Businesses {
		if b.Failed() {
			n++
		}
	}
	return n
}
