// Package subresource keeps the addresses and contacts hanging off a lead in step with the
// wizard. Every write is find-or-create so re-running a submission repairs a partial one.
package subresource

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/normalize"
	"onboarding-reconciler/internal/remote"
)

const (
	AddressDoctype = "Address"
	ContactDoctype = "Contact"

	TypeBilling = "Billing"
	TypeShop    = "Shop"

	// DefaultConcurrency bounds how many business entries are synchronized at once.
	DefaultConcurrency = 4
)

// Store is the subset of the remote client the synchronizer needs.
type Store interface {
	Fetch(ctx context.Context, resourceType string, q remote.Query) ([]remote.Record, error)
	Create(ctx context.Context, resourceType string, payload remote.Record) (remote.Record, error)
	Update(ctx context.Context, resourceType, key string, payload remote.Record) (remote.Record, error)
}

// AddressFields are the postal fields of an address. Empty fields are not written.
type AddressFields struct {
	Line1   string
	City    string
	Pincode string
	State   string
	Country string
}

// Identity is the person a contact is created for.
type Identity struct {
	FullName string
	Email    string
	Phone    string
}

func (i Identity) empty() bool {
	return strings.TrimSpace(i.FullName) == "" && strings.TrimSpace(i.Email) == ""
}

// Outcome is the result of one sub-resource write.
type Outcome struct {
	Name   string
	Action domain.Action
}

// Synchronizer writes addresses and contacts linked to an owner record.
type Synchronizer struct {
	store       Store
	countries   *normalize.CountryNormalizer
	logger      zerolog.Logger
	concurrency int
}

// New builds a Synchronizer. A nil normalizer disables country normalization.
func New(store Store, countries *normalize.CountryNormalizer, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{store: store, countries: countries, logger: logger, concurrency: DefaultConcurrency}
}

// SetConcurrency changes how many business entries are synchronized in parallel.
func (s *Synchronizer) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// SyncAddress updates the owner's most recent address with the given title and type, or
// creates and links one.
func (s *Synchronizer) SyncAddress(ctx context.Context, owner remote.Link, title, addressType string, fields AddressFields) (*Outcome, error) {
	if err := validOwner(owner); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.NewValidationError("address_title", "address title is required")
	}

	rows, err := s.store.Fetch(ctx, AddressDoctype, remote.Query{
		Filters: []remote.Filter{
			remote.Eq("link_doctype", owner.Doctype),
			remote.Eq("link_name", owner.Name),
			remote.Eq("address_title", title),
			remote.Eq("address_type", addressType),
		},
		Fields:  []string{"name"},
		OrderBy: "modified desc",
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}

	payload := s.addressRecord(fields)
	payload["address_title"] = title
	payload["address_type"] = addressType
	payload["link_doctype"] = owner.Doctype
	payload["link_name"] = owner.Name

	if len(rows) > 0 {
		key, _ := rows[0]["name"].(string)
		if _, err := s.store.Update(ctx, AddressDoctype, key, payload); err != nil {
			return nil, err
		}
		return &Outcome{Name: key, Action: domain.ActionUpdated}, nil
	}

	payload["links"] = links(owner)
	rec, err := s.store.Create(ctx, AddressDoctype, payload)
	if err != nil {
		return nil, err
	}
	name, _ := rec["name"].(string)
	return &Outcome{Name: name, Action: domain.ActionCreated}, nil
}

// SyncContact finds the owner's contact for the identity, by email or, without one, by full
// name, and updates it; otherwise it creates one linked to the owner and the address. An
// identity with neither name nor email is skipped.
func (s *Synchronizer) SyncContact(ctx context.Context, owner remote.Link, addressName string, id Identity) (*Outcome, error) {
	if err := validOwner(owner); err != nil {
		return nil, err
	}
	if id.empty() {
		return &Outcome{Action: domain.ActionSkipped}, nil
	}

	email := strings.TrimSpace(id.Email)
	first, last := splitName(id.FullName)
	if first == "" {
		first = email
	}

	filters := []remote.Filter{
		remote.Eq("link_doctype", owner.Doctype),
		remote.Eq("link_name", owner.Name),
	}
	if email != "" {
		filters = append(filters, remote.Eq("email_id", email))
	} else {
		filters = append(filters, remote.Eq("first_name", first), remote.Eq("last_name", last))
	}
	rows, err := s.store.Fetch(ctx, ContactDoctype, remote.Query{
		Filters: filters,
		Fields:  []string{"name"},
		OrderBy: "modified desc",
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}

	payload := remote.Record{
		"first_name":   first,
		"last_name":    last,
		"link_doctype": owner.Doctype,
		"link_name":    owner.Name,
	}
	if email != "" {
		payload["email_id"] = email
	}
	if phone := strings.TrimSpace(id.Phone); phone != "" {
		payload["mobile_no"] = phone
		payload["phone"] = phone
	}
	if addressName != "" {
		payload["address"] = addressName
	}

	if len(rows) > 0 {
		key, _ := rows[0]["name"].(string)
		if _, err := s.store.Update(ctx, ContactDoctype, key, payload); err != nil {
			return nil, err
		}
		return &Outcome{Name: key, Action: domain.ActionUpdated}, nil
	}

	payload["links"] = links(owner)
	if email != "" {
		payload["email_ids"] = []map[string]any{{"email_id": email, "is_primary": 1}}
	}
	if phone, ok := payload["mobile_no"].(string); ok {
		payload["phone_nos"] = []map[string]any{{"phone": phone, "is_primary_mobile_no": 1}}
	}
	rec, err := s.store.Create(ctx, ContactDoctype, payload)
	if err != nil {
		return nil, err
	}
	name, _ := rec["name"].(string)
	return &Outcome{Name: name, Action: domain.ActionCreated}, nil
}

// SyncCompany keeps the billing address titled with the company name, falling back to
// "Billing". Companies without postal data are skipped.
func (s *Synchronizer) SyncCompany(ctx context.Context, owner remote.Link, info domain.CompanyInfo) domain.EntryStatus {
	title := strings.TrimSpace(info.CompanyName)
	if title == "" {
		title = TypeBilling
	}
	status := domain.EntryStatus{
		Index:   -1,
		Title:   title,
		Contact: domain.StepStatus{Action: domain.ActionSkipped},
	}
	if !info.HasAddress() {
		status.Address = domain.StepStatus{Action: domain.ActionSkipped, Reason: "no postal data"}
		return status
	}

	out, err := s.SyncAddress(ctx, owner, title, TypeBilling, AddressFields{
		Line1:   info.Street,
		City:    info.City,
		Pincode: info.ZipCode,
		State:   info.FederalState,
		Country: info.Country,
	})
	status.Address = step(out, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("owner", owner.Name).Str("title", title).Msg("billing address sync failed")
	}
	return status
}

// SyncBusinesses writes one shop address and one contact per entry. Entries run concurrently
// and a failure in one never affects the others.
func (s *Synchronizer) SyncBusinesses(ctx context.Context, owner remote.Link, entries []domain.BusinessEntry) []domain.EntryStatus {
	statuses := make([]domain.EntryStatus, len(entries))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			statuses[i] = s.syncBusiness(ctx, owner, i, entry)
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

func (s *Synchronizer) syncBusiness(ctx context.Context, owner remote.Link, index int, b domain.BusinessEntry) domain.EntryStatus {
	status := domain.EntryStatus{Index: index, Title: b.Title()}
	if status.Title == "" {
		reason := "business has neither a name nor a street"
		status.Address = domain.StepStatus{Action: domain.ActionSkipped, Reason: reason}
		status.Contact = domain.StepStatus{Action: domain.ActionSkipped, Reason: reason}
		return status
	}

	addr, err := s.SyncAddress(ctx, owner, status.Title, TypeShop, AddressFields{
		Line1:   b.Street,
		City:    b.City,
		Pincode: b.ZipCode,
		State:   b.FederalState,
		Country: b.Country,
	})
	status.Address = step(addr, err)
	addressName := ""
	if err != nil {
		s.logger.Warn().Err(err).Str("owner", owner.Name).Int("business", index).Str("title", status.Title).Msg("shop address sync failed")
	} else {
		addressName = addr.Name
	}

	id := contactIdentity(b)
	if id.empty() {
		status.Contact = domain.StepStatus{Action: domain.ActionSkipped}
		return status
	}
	contact, err := s.SyncContact(ctx, owner, addressName, id)
	status.Contact = step(contact, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("owner", owner.Name).Int("business", index).Str("title", status.Title).Msg("contact sync failed")
	}
	return status
}

// contactIdentity prefers the distinct contact person when the entry flags one.
func contactIdentity(b domain.BusinessEntry) Identity {
	if b.DifferentContactPerson {
		id := Identity{FullName: b.ContactPersonName, Email: b.ContactPersonEmail, Phone: b.ContactPersonTelephone}
		if !id.empty() {
			return id
		}
	}
	return Identity{FullName: b.OwnerDirector, Email: b.OwnerEmail, Phone: b.OwnerTelephone}
}

func (s *Synchronizer) addressRecord(f AddressFields) remote.Record {
	rec := remote.Record{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			rec[k] = v
		}
	}
	set("address_line1", f.Line1)
	set("city", f.City)
	set("county", f.City)
	set("pincode", f.Pincode)
	set("state", f.State)
	country := f.Country
	if s.countries != nil {
		country = s.countries.Normalize(country)
	}
	set("country", country)
	return rec
}

func step(out *Outcome, err error) domain.StepStatus {
	if err != nil {
		return domain.StepStatus{Action: domain.ActionFailed, Error: err.Error()}
	}
	return domain.StepStatus{Action: out.Action, Name: out.Name}
}

func links(owner remote.Link) []map[string]any {
	return []map[string]any{{"link_doctype": owner.Doctype, "link_name": owner.Name}}
}

func validOwner(owner remote.Link) error {
	if strings.TrimSpace(owner.Doctype) == "" || strings.TrimSpace(owner.Name) == "" {
		return domain.NewValidationError("owner", "owner record is required")
	}
	return nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}
