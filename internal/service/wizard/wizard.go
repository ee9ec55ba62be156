// Package wizard runs a complete onboarding submission against the remote store and reads the
// accumulated state back when the applicant resumes.
package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/journal"
	"onboarding-reconciler/internal/normalize"
	"onboarding-reconciler/internal/remote"
	"onboarding-reconciler/internal/service/lead"
	"onboarding-reconciler/internal/service/selection"
	"onboarding-reconciler/internal/service/subresource"
)

// Remote is the subset of the remote client the wizard calls directly.
type Remote interface {
	Get(ctx context.Context, resourceType, key string) (remote.Record, error)
	Fetch(ctx context.Context, resourceType string, q remote.Query) ([]remote.Record, error)
	Upload(ctx context.Context, up remote.FileUpload) (domain.FileRef, error)
}

// Deps wires the collaborators of a Service.
type Deps struct {
	Remote    Remote
	Leads     *lead.Engine
	Sync      *subresource.Synchronizer
	Selection *selection.Mapper
	Countries *normalize.CountryNormalizer
	Journal   journal.Store
}

// Upload is a file attached to a submission.
type Upload struct {
	Category string
	FileName string
	Content  io.Reader
}

// Submission is the accumulated wizard state sent on every step. Nil steps are not provided
// and leave the stored values untouched.
type Submission struct {
	Email       string                 `json:"email"`
	CompanyInfo *domain.CompanyInfo    `json:"companyInfo,omitempty"`
	Businesses  []domain.BusinessEntry `json:"businesses,omitempty"`
	PaymentInfo *domain.PaymentInfo    `json:"paymentInfo,omitempty"`
	Documents   *domain.Documents      `json:"documents,omitempty"`
	Services    []string               `json:"services,omitempty"`
	Uploads     []Upload               `json:"-"`
}

// SubmitResult is returned for a submission whose lead write succeeded.
type SubmitResult struct {
	Lead      remote.Record             `json:"lead"`
	Name      string                    `json:"name"`
	Created   bool                      `json:"created"`
	Converted bool                      `json:"converted"`
	Message   string                    `json:"message"`
	Services  []domain.ServiceSelection `json:"services,omitempty"`
	Report    domain.SyncReport         `json:"sync"`
	Degraded  []string                  `json:"degraded,omitempty"`
}

// Service runs submissions and loads.
type Service struct {
	remote    Remote
	leads     *lead.Engine
	sync      *subresource.Synchronizer
	selection *selection.Mapper
	countries *normalize.CountryNormalizer
	journal   journal.Store
	logger    zerolog.Logger
}

// New builds a Service. A nil journal discards entries.
func New(deps Deps, logger zerolog.Logger) *Service {
	j := deps.Journal
	if j == nil {
		j = journal.Noop{}
	}
	return &Service{
		remote:    deps.Remote,
		leads:     deps.Leads,
		sync:      deps.Sync,
		selection: deps.Selection,
		countries: deps.Countries,
		journal:   j,
		logger:    logger,
	}
}

// Submit writes the submission to the lead and reconciles its addresses and contacts.
// Address and contact failures are reported in the result, never returned.
func (s *Service) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	email := strings.TrimSpace(sub.Email)
	if email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}
	if err := validateUploads(sub.Uploads); err != nil {
		return nil, err
	}
	log := s.logger.With().Str("email", email).Logger()

	prof := s.profile(ctx, email)

	docs := sub.Documents
	if len(sub.Uploads) > 0 {
		merged, err := s.attach(ctx, email, docs, sub.Uploads)
		if err != nil {
			s.record(ctx, journal.Entry{Email: email, Error: err.Error()})
			return nil, err
		}
		docs = merged
	}

	var selections []domain.ServiceSelection
	if ids := trimmed(sub.Services); len(ids) > 0 {
		selections = selection.Pair(ids, s.selection.ResolveNames(ctx, ids))
	}

	patch, err := s.buildPatch(sub, docs, prof)
	if err != nil {
		return nil, err
	}

	res, err := s.leads.Upsert(ctx, email, patch, selections, lead.WithLeadName(prof.FirstName))
	if err != nil {
		log.Error().Err(err).Msg("lead upsert failed")
		s.record(ctx, journal.Entry{Email: email, Error: err.Error()})
		return nil, err
	}

	owner := remote.Link{Doctype: lead.Doctype, Name: res.Name}
	report := domain.SyncReport{Businesses: []domain.EntryStatus{}}
	if sub.CompanyInfo != nil {
		billing := s.sync.SyncCompany(ctx, owner, companyWithProfile(*sub.CompanyInfo, prof, res.Record))
		report.Billing = &billing
	}
	if len(sub.Businesses) > 0 {
		report.Businesses = s.sync.SyncBusinesses(ctx, owner, sub.Businesses)
	}
	if n := report.FailedCount(); n > 0 {
		log.Warn().Str("lead", res.Name).Int("failed_entries", n).Msg("submission applied with sub-resource failures")
	}

	out := &SubmitResult{
		Lead:      res.Record,
		Name:      res.Name,
		Created:   res.Created,
		Converted: res.Converted,
		Message:   "Lead updated successfully",
		Services:  selections,
		Report:    report,
		Degraded:  res.Degraded,
	}
	if res.Created {
		out.Message = "Lead created successfully"
	}
	s.record(ctx, journal.Entry{
		Email:     email,
		LeadName:  res.Name,
		Created:   res.Created,
		Converted: res.Converted,
		Degraded:  res.Degraded,
		Report:    report,
	})
	return out, nil
}

func (s *Service) record(ctx context.Context, e journal.Entry) {
	if _, err := s.journal.Append(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("email", e.Email).Msg("journal append failed")
	}
}

type profile struct {
	FirstName   string
	CompanyName string
	Telephone   string
}

// profile reads the registrant's name, company and phone. Both sources are optional.
func (s *Service) profile(ctx context.Context, email string) profile {
	var p profile
	userName := email
	user, err := s.remote.Get(ctx, userDoctype, email)
	if err != nil {
		s.logger.Debug().Err(err).Str("email", email).Msg("registrant user not readable")
	} else {
		p.FirstName = normalize.String(user, "first_name")
		p.Telephone = normalize.String(user, "mobile_no", "phone")
		if name := normalize.String(user, "name"); name != "" {
			userName = name
		}
	}

	rows, err := s.remote.Fetch(ctx, registerDoctype, remote.Query{
		Filters: []remote.Filter{remote.Eq("user", userName)},
		Fields:  []string{"*"},
		Limit:   1,
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("email", email).Msg("registrant register not readable")
		return p
	}
	if len(rows) > 0 {
		if c := normalize.String(rows[0], "company_name"); c != "" {
			p.CompanyName = c
		}
		if t := normalize.String(rows[0], "telephone"); t != "" {
			p.Telephone = t
		}
	}
	return p
}

// companyWithProfile settles the company name used as the billing address title: the
// registrant's, then the form's, then the one already stored on the lead.
func companyWithProfile(info domain.CompanyInfo, p profile, stored remote.Record) domain.CompanyInfo {
	switch {
	case p.CompanyName != "":
		info.CompanyName = p.CompanyName
	case strings.TrimSpace(info.CompanyName) == "":
		info.CompanyName = normalize.String(stored, lead.FieldCompanyName)
	}
	return info
}

// attach uploads the files and appends their references to the matching document lists.
// Lists the submission does not carry are continued from the stored lead.
func (s *Service) attach(ctx context.Context, email string, docs *domain.Documents, uploads []Upload) (*domain.Documents, error) {
	out := &domain.Documents{}
	if docs != nil {
		*out = *docs
	}

	var stored remote.Record
	touched := map[string]bool{}
	for _, up := range uploads {
		list := out.Files(up.Category)
		if !touched[up.Category] && *list != nil {
			*list = append([]domain.FileRef{}, (*list)...)
		}
		touched[up.Category] = true
		if *list == nil {
			if stored == nil {
				rec, err := s.leads.Find(ctx, email)
				if err != nil {
					return nil, err
				}
				if rec == nil {
					rec = remote.Record{}
				}
				stored = rec
			}
			*list = decodeFiles(stored[fileFields[up.Category]], s.logger)
		}

		ref, err := s.remote.Upload(ctx, remote.FileUpload{
			FileName: up.FileName,
			Content:  up.Content,
			Private:  true,
			Doctype:  lead.Doctype,
		})
		if err != nil {
			return nil, fmt.Errorf("upload %s file %q: %w", up.Category, up.FileName, err)
		}
		*list = append(*list, ref)
		s.logger.Debug().Str("category", up.Category).Str("url", ref.URL).Msg("document uploaded")
	}
	return out, nil
}

func validateUploads(uploads []Upload) error {
	probe := &domain.Documents{}
	for _, up := range uploads {
		if probe.Files(up.Category) == nil {
			return domain.NewValidationError("files."+up.Category, fmt.Sprintf("unknown document category %q", up.Category))
		}
		if strings.TrimSpace(up.FileName) == "" {
			return domain.NewValidationError("files."+up.Category, "file name is required")
		}
		if up.Content == nil {
			return domain.NewValidationError("files."+up.Category, "file content is required")
		}
	}
	return nil
}

// buildPatch maps the provided wizard steps to lead fields. Only non-empty values are set.
func (s *Service) buildPatch(sub Submission, docs *domain.Documents, p profile) (lead.Patch, error) {
	patch := lead.Patch{}

	company := p.CompanyName
	if company == "" && sub.CompanyInfo != nil {
		company = sub.CompanyInfo.CompanyName
	}
	patch.Set(lead.FieldCompanyName, company)
	patch.Set(fieldPhone, p.Telephone)
	patch.Set(fieldMobile, p.Telephone)

	if c := sub.CompanyInfo; c != nil {
		patch.Set(fieldAddressLine1, c.Street)
		patch.Set(fieldCity, c.City)
		patch.Set(fieldPincode, c.ZipCode)
		patch.Set(fieldState, c.FederalState)
		patch.Set(fieldCountry, s.country(c.Country))
		patch.Set(fieldVAT, c.VATIdentificationNumber)
		patch.Set(fieldTaxID, c.TaxIDNumber)
	}

	if len(sub.Businesses) > 0 {
		entries := make([]domain.BusinessEntry, len(sub.Businesses))
		for i, b := range sub.Businesses {
			b.Country = s.country(b.Country)
			entries[i] = b
		}
		raw, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("encode businesses: %w", err)
		}
		patch[fieldBusinesses] = string(raw)
	}

	if pay := sub.PaymentInfo; pay != nil {
		patch.Set(fieldAccountHolder, pay.AccountHolder)
		patch.Set(fieldIBAN, pay.IBAN)
		patch.Set(fieldBIC, pay.BIC)
	}

	if docs != nil {
		patch.Set(fieldTypeOfCompany, docs.TypeOfCompany)
		for _, category := range domain.DocumentCategories {
			files := *docs.Files(category)
			if files == nil {
				continue
			}
			raw, err := json.Marshal(files)
			if err != nil {
				return nil, fmt.Errorf("encode %s files: %w", category, err)
			}
			patch[fileFields[category]] = string(raw)
		}
		if docs.IsCompleted {
			patch[fieldRegistration] = registrationCompleted
		}
	}
	return patch, nil
}

func (s *Service) country(v string) string {
	if s.countries == nil {
		return strings.TrimSpace(v)
	}
	return s.countries.Normalize(v)
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
