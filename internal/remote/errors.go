package remote

import (
	"encoding/json"
	"regexp"
	"strings"

	"onboarding-reconciler/internal/domain"
)

type errorBody struct {
	Exception      string          `json:"exception"`
	ExcType        string          `json:"exc_type"`
	ServerMessages string          `json:"_server_messages"`
	Message        json.RawMessage `json:"message"`
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

func parseRemoteError(method, path string, status int, body []byte) *domain.RemoteError {
	re := &domain.RemoteError{Method: method, Resource: path, Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		re.Message = truncate(strings.TrimSpace(string(body)), 300)
		return re
	}

	re.ExcType = eb.ExcType
	if re.ExcType == "" {
		re.ExcType = excTypeFromException(eb.Exception)
	}

	switch {
	case serverMessage(eb.ServerMessages) != "":
		re.Message = serverMessage(eb.ServerMessages)
	case rawString(eb.Message) != "":
		re.Message = rawString(eb.Message)
	case eb.Exception != "":
		re.Message = eb.Exception
	default:
		re.Message = truncate(strings.TrimSpace(string(body)), 300)
	}
	re.Message = strings.TrimSpace(htmlTag.ReplaceAllString(re.Message, ""))
	return re
}

// serverMessage decodes the doubly-encoded _server_messages field and returns the first message.
func serverMessage(raw string) string {
	if raw == "" {
		return ""
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return ""
	}
	for _, item := range items {
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(item), &msg); err == nil && msg.Message != "" {
			return msg.Message
		}
		if item != "" && !strings.HasPrefix(item, "{") {
			return item
		}
	}
	return ""
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// excTypeFromException pulls "DuplicateEntryError" out of
// "frappe.exceptions.DuplicateEntryError: ('Lead', ...)".
func excTypeFromException(exception string) string {
	head, _, found := strings.Cut(exception, ":")
	if !found {
		return ""
	}
	head = strings.TrimSpace(head)
	if i := strings.LastIndex(head, "."); i >= 0 {
		head = head[i+1:]
	}
	if strings.ContainsAny(head, " \t") {
		return ""
	}
	return head
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
