// Package remotetest serves an in-memory fake of the remote resource API over httptest so
// services can be tested through the real client.
package remotetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"onboarding-reconciler/internal/remote"
)

// Credential is the token the fake store accepts.
const Credential = "token test-key:test-secret"

// Envelope selects how list responses are wrapped.
type Envelope int

const (
	EnvelopeData Envelope = iota
	EnvelopeBare
	EnvelopeMessage
)

// Call is one request received by the store.
type Call struct {
	Method  string
	Doctype string
	Key     string
	Query   url.Values
	Body    remote.Record
}

// Rule makes the store reject matching writes. An empty Method, Doctype or Field matches
// anything; a set Field matches bodies carrying a non-empty value for it. Where narrows the
// rule to bodies carrying those exact values. Times limits how
// often the rule fires; zero means always.
type Rule struct {
	Method  string
	Doctype string
	Field   string
	Where   map[string]any
	Status  int
	Message string
	ExcType string
	Times   int

	fired int
}

// Store is the fake remote store.
type Store struct {
	mu       sync.Mutex
	docs     map[string][]remote.Record
	seq      map[string]int
	unique   map[string][]string
	bare     map[string]bool
	rules    []*Rule
	calls    []Call
	files    map[string][]byte
	envelope Envelope
	server   *httptest.Server
}

// New starts a store that knows the given doctypes. Requests for any other doctype get 404.
func New(t testing.TB, doctypes ...string) *Store {
	t.Helper()
	s := &Store{
		docs:   map[string][]remote.Record{},
		seq:    map[string]int{},
		unique: map[string][]string{},
		bare:   map[string]bool{},
		files:  map[string][]byte{},
	}
	for _, d := range doctypes {
		s.docs[d] = []remote.Record{}
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)
	return s
}

// URL is the base endpoint of the store.
func (s *Store) URL() string {
	return s.server.URL
}

// Client builds a real remote client pointed at the store.
func (s *Store) Client(t testing.TB, opts ...remote.Option) *remote.Client {
	t.Helper()
	c, err := remote.New(remote.Config{Endpoint: s.URL(), Credential: Credential}, opts...)
	if err != nil {
		t.Fatalf("remote client: %v", err)
	}
	return c
}

// SetEnvelope switches the list response shape.
func (s *Store) SetEnvelope(e Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelope = e
}

// Unique declares a uniqueness constraint on a doctype field.
func (s *Store) Unique(doctype, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unique[doctype] = append(s.unique[doctype], field)
}

// OmitChildTables makes list reads of doctype leave out child table fields, the way a real
// store does. Single-document reads still carry them.
func (s *Store) OmitChildTables(doctype string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bare[doctype] = true
}

// Reject installs a rejection rule.
func (s *Store) Reject(r Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Status == 0 {
		r.Status = http.StatusExpectationFailed
	}
	rule := r
	s.rules = append(s.rules, &rule)
}

// Seed stores records as-is, registering the doctype. Records without a name get one.
func (s *Store) Seed(doctype string, recs ...remote.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doctype]; !ok {
		s.docs[doctype] = []remote.Record{}
	}
	for _, r := range recs {
		rec := clone(r)
		if name, _ := rec["name"].(string); name == "" {
			rec["name"] = s.nextName(doctype)
		}
		if _, ok := rec["modified"]; !ok {
			rec["modified"] = s.stamp()
		}
		s.docs[doctype] = append(s.docs[doctype], rec)
	}
}

// SeedFile makes a file path downloadable.
func (s *Store) SeedFile(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

// Records returns copies of every stored record of a doctype.
func (s *Store) Records(doctype string) []remote.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.Record, 0, len(s.docs[doctype]))
	for _, r := range s.docs[doctype] {
		out = append(out, clone(r))
	}
	return out
}

// Record returns one stored record by name.
func (s *Store) Record(doctype, name string) (remote.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.docs[doctype] {
		if r["name"] == name {
			return clone(r), true
		}
	}
	return nil, false
}

// Calls returns the request log.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount counts requests by method and doctype. Empty arguments match anything.
func (s *Store) CallCount(method, doctype string) int {
	n := 0
	for _, c := range s.Calls() {
		if (method == "" || c.Method == method) && (doctype == "" || c.Doctype == doctype) {
			n++
		}
	}
	return n
}

// ResetCalls clears the request log.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Store) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != Credential {
		writeError(w, http.StatusUnauthorized, "AuthenticationError", "invalid credential")
		return
	}

	switch {
	case r.URL.Path == "/api/method/upload_file":
		s.serveUpload(w, r)
		return
	case strings.HasPrefix(r.URL.Path, "/files/"), strings.HasPrefix(r.URL.Path, "/private/files/"):
		s.serveFile(w, r)
		return
	}

	rest, ok := strings.CutPrefix(r.URL.EscapedPath(), "/api/resource/")
	if !ok {
		writeError(w, http.StatusNotFound, "DoesNotExistError", "unknown endpoint")
		return
	}
	rawDoctype, rawKey, _ := strings.Cut(rest, "/")
	doctype, _ := url.PathUnescape(rawDoctype)
	key, _ := url.PathUnescape(rawKey)

	var body remote.Record
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &body); err != nil {
				writeError(w, http.StatusBadRequest, "ValidationError", "malformed JSON body")
				return
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Doctype: doctype, Key: key, Query: r.URL.Query(), Body: clone(body)})

	if _, known := s.docs[doctype]; !known {
		writeError(w, http.StatusNotFound, "DoesNotExistError", fmt.Sprintf("DocType %s not found", doctype))
		return
	}

	switch {
	case r.Method == http.MethodGet && key == "":
		s.list(w, r, doctype)
	case r.Method == http.MethodGet:
		s.get(w, doctype, key)
	case r.Method == http.MethodPost && key == "":
		s.create(w, doctype, body)
	case r.Method == http.MethodPut && key != "":
		s.update(w, doctype, key, body)
	default:
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
	}
}

func (s *Store) list(w http.ResponseWriter, r *http.Request, doctype string) {
	q := r.URL.Query()
	var filters [][]any
	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			writeError(w, http.StatusExpectationFailed, "ValidationError", "malformed filters")
			return
		}
	}
	var fields []string
	if raw := q.Get("fields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			writeError(w, http.StatusExpectationFailed, "ValidationError", "malformed fields")
			return
		}
	}

	matched := make([]remote.Record, 0)
	for _, rec := range s.docs[doctype] {
		if matches(rec, filters) {
			matched = append(matched, rec)
		}
	}
	if order := q.Get("order_by"); strings.HasPrefix(order, "modified") {
		desc := strings.HasSuffix(strings.ToLower(order), "desc")
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := matched[i]["modified"].(string)
			b, _ := matched[j]["modified"].(string)
			if desc {
				return a > b
			}
			return a < b
		})
	}
	limit := 20
	if raw := q.Get("limit_page_length"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]any, 0, len(matched))
	for _, rec := range matched {
		row := project(rec, fields)
		if s.bare[doctype] {
			for k, v := range row {
				if _, ok := v.([]any); ok {
					delete(row, k)
				}
			}
		}
		out = append(out, row)
	}
	switch s.envelope {
	case EnvelopeBare:
		writeJSON(w, http.StatusOK, out)
	case EnvelopeMessage:
		writeJSON(w, http.StatusOK, map[string]any{"message": out})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	}
}

func (s *Store) get(w http.ResponseWriter, doctype, key string) {
	for _, rec := range s.docs[doctype] {
		if rec["name"] == key {
			writeJSON(w, http.StatusOK, map[string]any{"data": rec})
			return
		}
	}
	writeError(w, http.StatusNotFound, "DoesNotExistError", fmt.Sprintf("%s %s not found", doctype, key))
}

func (s *Store) create(w http.ResponseWriter, doctype string, body remote.Record) {
	if s.rejected(http.MethodPost, doctype, body, w) {
		return
	}
	for _, field := range s.unique[doctype] {
		v, ok := body[field]
		if !ok || v == "" {
			continue
		}
		for _, rec := range s.docs[doctype] {
			if fmt.Sprint(rec[field]) == fmt.Sprint(v) {
				writeError(w, http.StatusConflict, "DuplicateEntryError",
					fmt.Sprintf("Duplicate entry: %s %v must be unique", field, v))
				return
			}
		}
	}
	rec := clone(body)
	if name, _ := rec["name"].(string); name == "" {
		rec["name"] = s.nextName(doctype)
	}
	rec["doctype"] = doctype
	rec["modified"] = s.stamp()
	s.docs[doctype] = append(s.docs[doctype], rec)
	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (s *Store) update(w http.ResponseWriter, doctype, key string, body remote.Record) {
	if s.rejected(http.MethodPut, doctype, body, w) {
		return
	}
	for _, rec := range s.docs[doctype] {
		if rec["name"] != key {
			continue
		}
		for k, v := range body {
			if k == "name" {
				continue
			}
			rec[k] = v
		}
		rec["modified"] = s.stamp()
		writeJSON(w, http.StatusOK, map[string]any{"data": rec})
		return
	}
	writeError(w, http.StatusNotFound, "DoesNotExistError", fmt.Sprintf("%s %s not found", doctype, key))
}

func (s *Store) rejected(method, doctype string, body remote.Record, w http.ResponseWriter) bool {
	for _, rule := range s.rules {
		if rule.Method != "" && rule.Method != method {
			continue
		}
		if rule.Doctype != "" && rule.Doctype != doctype {
			continue
		}
		if rule.Field != "" && empty(body[rule.Field]) {
			continue
		}
		if !carries(body, rule.Where) {
			continue
		}
		if rule.Times > 0 && rule.fired >= rule.Times {
			continue
		}
		rule.fired++
		writeError(w, rule.Status, rule.ExcType, rule.Message)
		return true
	}
	return false
}

func (s *Store) serveUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "malformed upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "ValidationError", "missing file")
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Doctype: "File", Body: remote.Record{"file_name": header.Filename}})
	name := s.nextName("File")
	prefix := "/files/"
	if r.FormValue("is_private") == "1" {
		prefix = "/private/files/"
	}
	fileURL := prefix + header.Filename
	s.files[fileURL] = data
	writeJSON(w, http.StatusOK, map[string]any{"message": map[string]any{
		"name":      name,
		"file_name": header.Filename,
		"file_url":  fileURL,
	}})
}

func (s *Store) serveFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, ok := s.files[r.URL.Path]
	s.calls = append(s.calls, Call{Method: r.Method, Doctype: "File", Key: r.URL.Path})
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "DoesNotExistError", "file not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Store) nextName(doctype string) string {
	s.seq[doctype]++
	prefix := strings.ToUpper(strings.ReplaceAll(doctype, " ", "-"))
	return fmt.Sprintf("%s-%05d", prefix, s.seq[doctype])
}

func (s *Store) stamp() string {
	s.seq["~clock"]++
	return fmt.Sprintf("2026-01-01 00:00:%06d", s.seq["~clock"])
}

func matches(rec remote.Record, filters [][]any) bool {
	for _, f := range filters {
		if len(f) == 4 {
			f = f[1:]
		}
		if len(f) != 3 {
			return false
		}
		field, _ := f[0].(string)
		op, _ := f[1].(string)
		got := rec[field]
		switch strings.ToLower(op) {
		case "=":
			if fmt.Sprint(got) != fmt.Sprint(f[2]) || got == nil {
				return false
			}
		case "!=":
			if fmt.Sprint(got) == fmt.Sprint(f[2]) {
				return false
			}
		case "in":
			list, _ := f[2].([]any)
			found := false
			for _, v := range list {
				if got != nil && fmt.Sprint(got) == fmt.Sprint(v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "like":
			pattern, _ := f[2].(string)
			needle := strings.ToLower(strings.Trim(pattern, "%"))
			s, _ := got.(string)
			if !strings.Contains(strings.ToLower(s), needle) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func carries(body remote.Record, where map[string]any) bool {
	for k, v := range where {
		if fmt.Sprint(body[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func empty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	}
	return false
}

func project(rec remote.Record, fields []string) remote.Record {
	if len(fields) == 0 {
		return remote.Record{"name": rec["name"]}
	}
	out := remote.Record{}
	for _, f := range fields {
		if f == "*" {
			return clone(rec)
		}
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

func clone(r remote.Record) remote.Record {
	if r == nil {
		return nil
	}
	out := make(remote.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, excType, message string) {
	body := map[string]any{"message": message}
	if excType != "" {
		body["exc_type"] = excType
		body["exception"] = fmt.Sprintf("frappe.exceptions.%s: %s", excType, message)
	}
	msg, _ := json.Marshal(map[string]string{"message": message})
	servers, _ := json.Marshal([]string{string(msg)})
	body["_server_messages"] = string(servers)
	writeJSON(w, status, body)
}
