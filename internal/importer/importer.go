// Package importer replays onboarding submissions from a CSV export, one submission per
// applicant email.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/service/wizard"
)

// Submitter runs one wizard submission.
type Submitter interface {
	Submit(ctx context.Context, sub wizard.Submission) (*wizard.SubmitResult, error)
}

// CSVImporter reads applicant rows and submits them through the wizard.
type CSVImporter struct {
	reader    *csv.Reader
	submitter Submitter
	logger    zerolog.Logger
}

func NewCSVImporter(r io.Reader, submitter Submitter, logger zerolog.Logger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{
		reader:    csvr,
		submitter: submitter,
		logger:    logger,
	}
}

// Summary counts what an import did.
type Summary struct {
	Imported      int
	Created       int
	FailedEntries int
}

// Run parses CSV rows and submits one wizard submission per email. Rows without an email
// continue the previous applicant with another business.
func (i *CSVImporter) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	headers, err := i.reader.Read()
	if err != nil {
		return sum, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["email"]; !ok {
		return sum, domain.NewValidationError("email", "csv has no email column")
	}

	var current *wizard.Submission
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("read row: %w", err)
		}

		email := pick(record, index, "email")
		if email != "" {
			if current != nil {
				if err := i.save(ctx, current, &sum); err != nil {
					return sum, err
				}
			}
			current = parseSubmission(record, index)
			continue
		}

		// Continuation rows carry further businesses of the current applicant.
		if current != nil {
			if b, ok := parseBusiness(record, index); ok {
				current.Businesses = append(current.Businesses, b)
			}
		}
	}

	if current != nil {
		if err := i.save(ctx, current, &sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (i *CSVImporter) save(ctx context.Context, sub *wizard.Submission, sum *Summary) error {
	res, err := i.submitter.Submit(ctx, *sub)
	if err != nil {
		return fmt.Errorf("submit %q: %w", sub.Email, err)
	}
	sum.Imported++
	if res.Created {
		sum.Created++
	}
	if n := res.Report.FailedCount(); n > 0 {
		sum.FailedEntries += n
		i.logger.Warn().Str("email", sub.Email).Str("lead", res.Name).Int("failed_entries", n).Msg("imported with sub-resource failures")
	}
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func parseSubmission(record []string, index map[string]int) *wizard.Submission {
	sub := &wizard.Submission{Email: pick(record, index, "email")}

	info := domain.CompanyInfo{
		CompanyName:             pick(record, index, "companyName"),
		Street:                  pick(record, index, "street"),
		City:                    pick(record, index, "city"),
		ZipCode:                 pick(record, index, "zipCode"),
		FederalState:            pick(record, index, "federalState"),
		Country:                 pick(record, index, "country"),
		VATIdentificationNumber: pick(record, index, "vatIdentificationNumber"),
		TaxIDNumber:             pick(record, index, "taxIdNumber"),
	}
	if info != (domain.CompanyInfo{}) {
		sub.CompanyInfo = &info
	}

	pay := domain.PaymentInfo{
		AccountHolder: pick(record, index, "accountHolder"),
		IBAN:          pick(record, index, "iban"),
		BIC:           pick(record, index, "bic"),
	}
	if pay != (domain.PaymentInfo{}) {
		sub.PaymentInfo = &pay
	}

	if raw := pick(record, index, "services"); raw != "" {
		for _, s := range strings.Split(raw, ";") {
			if s = strings.TrimSpace(s); s != "" {
				sub.Services = append(sub.Services, s)
			}
		}
	}

	if b, ok := parseBusiness(record, index); ok {
		sub.Businesses = append(sub.Businesses, b)
	}
	return sub
}

func parseBusiness(record []string, index map[string]int) (domain.BusinessEntry, bool) {
	b := domain.BusinessEntry{
		BusinessName:   pick(record, index, "businessName"),
		Street:         pick(record, index, "businessStreet"),
		City:           pick(record, index, "businessCity"),
		ZipCode:        pick(record, index, "businessZipCode"),
		FederalState:   pick(record, index, "businessFederalState"),
		Country:        pick(record, index, "businessCountry"),
		OwnerDirector:  pick(record, index, "ownerDirector"),
		OwnerEmail:     pick(record, index, "ownerEmail"),
		OwnerTelephone: pick(record, index, "ownerTelephone"),
	}
	if contact := pick(record, index, "contactPersonName"); contact != "" {
		b.DifferentContactPerson = true
		b.ContactPersonName = contact
		b.ContactPersonEmail = pick(record, index, "contactPersonEmail")
		b.ContactPersonTelephone = pick(record, index, "contactPersonTelephone")
	}
	return b, b != (domain.BusinessEntry{})
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
