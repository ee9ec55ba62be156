package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/service/wizard"
)

type stubSubmitter struct {
	items []wizard.Submission
	err   error
}

func (s *stubSubmitter) Submit(_ context.Context, sub wizard.Submission) (*wizard.SubmitResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.items = append(s.items, sub)
	res := &wizard.SubmitResult{Name: "LEAD-1", Created: len(s.items) == 1}
	for range sub.Businesses {
		res.Report.Businesses = append(res.Report.Businesses, domain.EntryStatus{Address: domain.StepStatus{Action: domain.ActionFailed}})
	}
	return res, nil
}

func TestCSVImporter_Run(t *testing.T) {
	csvData := `email,companyName,street,city,country,services,businessName,businessCity,ownerDirector,iban
a@x.com,Acme,Main St 1,Berlin,Deutschland,svc-1; svc-2,Pizzeria Roma,Köln,Mario Rossi,DE89
,,,,,,Döner Eck,Bonn,Ali Kaya,
b@x.com,,,,,,,,,`

	sub := &stubSubmitter{}
	imp := NewCSVImporter(strings.NewReader(csvData), sub, zerolog.Nop())

	sum, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if sum.Imported != 2 || sum.Created != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.FailedEntries != 2 {
		t.Fatalf("expected 2 failed entries, got %d", sum.FailedEntries)
	}

	first := sub.items[0]
	if first.Email != "a@x.com" || first.CompanyInfo == nil || first.CompanyInfo.Country != "Deutschland" {
		t.Fatalf("unexpected first submission %+v", first)
	}
	if len(first.Services) != 2 || first.Services[1] != "svc-2" {
		t.Fatalf("expected two services, got %v", first.Services)
	}
	if len(first.Businesses) != 2 || first.Businesses[1].BusinessName != "Döner Eck" {
		t.Fatalf("expected continuation business, got %+v", first.Businesses)
	}
	if first.PaymentInfo == nil || first.PaymentInfo.IBAN != "DE89" {
		t.Fatalf("expected payment info, got %+v", first.PaymentInfo)
	}

	second := sub.items[1]
	if second.CompanyInfo != nil || second.PaymentInfo != nil || second.Businesses != nil || second.Services != nil {
		t.Fatalf("expected bare submission, got %+v", second)
	}
}

func TestCSVImporter_RequiresEmailColumn(t *testing.T) {
	imp := NewCSVImporter(strings.NewReader("companyName\nAcme\n"), &stubSubmitter{}, zerolog.Nop())
	_, err := imp.Run(context.Background())
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCSVImporter_StopsOnSubmitError(t *testing.T) {
	imp := NewCSVImporter(strings.NewReader("email\na@x.com\nb@x.com\n"), &stubSubmitter{err: errors.New("store down")}, zerolog.Nop())
	sum, err := imp.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), `"a@x.com"`) {
		t.Fatalf("expected wrapped submit error, got %v", err)
	}
	if sum.Imported != 0 {
		t.Fatalf("expected nothing imported, got %d", sum.Imported)
	}
}
