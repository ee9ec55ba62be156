package wizard

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/domain"
	"onboarding-reconciler/internal/normalize"
	"onboarding-reconciler/internal/remote"
	"onboarding-reconciler/internal/service/lead"
	"onboarding-reconciler/internal/service/selection"
	"onboarding-reconciler/internal/service/subresource"
)

const shopListLimit = 100

// State is the wizard state reassembled from the lead and its sub-resources.
type State struct {
	Name               string                    `json:"name"`
	Email              string                    `json:"email"`
	Phone              string                    `json:"phone,omitempty"`
	RegistrationStatus string                    `json:"registrationStatus,omitempty"`
	CompanyInfo        domain.CompanyInfo        `json:"companyInfo"`
	Businesses         []domain.BusinessEntry    `json:"businesses"`
	PaymentInfo        domain.PaymentInfo        `json:"paymentInfo"`
	Documents          domain.Documents          `json:"documents"`
	Services           []string                  `json:"services"`
	ServiceSelections  []domain.ServiceSelection `json:"serviceSelections"`
	Record             remote.Record             `json:"record"`
}

// Load reads the lead for email and reassembles the wizard state. A missing lead is a
// NotFoundError. Sub-resource read failures only lose the overlay.
func (s *Service) Load(ctx context.Context, email string) (*State, error) {
	email = strings.TrimSpace(email)
	rec, err := s.leads.Find(ctx, email)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.NewNotFoundError("lead", email, lead.FieldEmail)
	}
	// List reads leave out child tables.
	if name := normalize.String(rec, lead.FieldName); name != "" {
		full, err := s.remote.Get(ctx, lead.Doctype, name)
		if err != nil {
			s.logger.Warn().Err(err).Str("lead", name).Msg("full lead not readable, using list row")
		} else {
			rec = full
		}
	}

	st := &State{
		Name:               normalize.String(rec, lead.FieldName),
		Email:              normalize.String(rec, lead.FieldEmail),
		Phone:              normalize.String(rec, fieldPhone, fieldMobile),
		RegistrationStatus: normalize.String(rec, fieldRegistration),
		CompanyInfo: domain.CompanyInfo{
			CompanyName:             normalize.String(rec, lead.FieldCompanyName),
			Street:                  normalize.String(rec, fieldAddressLine1),
			City:                    normalize.String(rec, fieldCity),
			ZipCode:                 normalize.String(rec, fieldPincode),
			FederalState:            normalize.String(rec, fieldState),
			Country:                 normalize.String(rec, fieldCountry),
			VATIdentificationNumber: normalize.String(rec, fieldVAT),
			TaxIDNumber:             normalize.String(rec, fieldTaxID, fieldTaxIDSingle, "tax_id"),
		},
		PaymentInfo: domain.PaymentInfo{
			AccountHolder: normalize.String(rec, fieldAccountHolder),
			IBAN:          normalize.String(rec, fieldIBAN),
			BIC:           normalize.String(rec, fieldBIC, fieldBICDouble),
		},
		Businesses: decodeBusinesses(rec[fieldBusinesses], s.logger),
		Record:     rec,
	}
	if st.Email == "" {
		st.Email = email
	}
	st.Documents.TypeOfCompany = normalize.String(rec, fieldTypeOfCompany)
	st.Documents.IsCompleted = st.RegistrationStatus == registrationCompleted
	for _, category := range domain.DocumentCategories {
		files := decodeFiles(rec[fileFields[category]], s.logger)
		if files == nil {
			files = []domain.FileRef{}
		}
		*st.Documents.Files(category) = files
	}

	owner := remote.Link{Doctype: lead.Doctype, Name: st.Name}
	if owner.Name != "" {
		s.overlayBilling(ctx, owner, &st.CompanyInfo)
		s.mergeShops(ctx, owner, st.Businesses)
	}

	st.ServiceSelections = s.readSelections(ctx, rec)
	st.Services = selection.IDs(st.ServiceSelections)
	return st, nil
}

// overlayBilling prefers the billing address over the postal fields copied onto the lead.
func (s *Service) overlayBilling(ctx context.Context, owner remote.Link, info *domain.CompanyInfo) {
	rows, err := s.remote.Fetch(ctx, subresource.AddressDoctype, remote.Query{
		Filters: ownerFilters(owner, subresource.TypeBilling),
		Fields:  []string{"*"},
		OrderBy: "modified desc",
		Limit:   1,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("lead", owner.Name).Msg("billing address not readable")
		return
	}
	if len(rows) == 0 {
		return
	}
	applyAddress(rows[0], &info.Street, &info.City, &info.ZipCode, &info.FederalState, &info.Country)
}

// mergeShops overlays each business entry with its shop address, matched by title.
func (s *Service) mergeShops(ctx context.Context, owner remote.Link, businesses []domain.BusinessEntry) {
	if len(businesses) == 0 {
		return
	}
	rows, err := s.remote.Fetch(ctx, subresource.AddressDoctype, remote.Query{
		Filters: ownerFilters(owner, subresource.TypeShop),
		Fields:  []string{"*"},
		OrderBy: "modified desc",
		Limit:   shopListLimit,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("lead", owner.Name).Msg("shop addresses not readable")
		return
	}

	byTitle := make(map[string]remote.Record, len(rows))
	for _, row := range rows {
		key := strings.ToLower(normalize.String(row, "address_title"))
		if _, seen := byTitle[key]; key != "" && !seen {
			byTitle[key] = row
		}
	}
	for i := range businesses {
		b := &businesses[i]
		row, ok := byTitle[strings.ToLower(b.Title())]
		if !ok {
			continue
		}
		applyAddress(row, &b.Street, &b.City, &b.ZipCode, &b.FederalState, &b.Country)
	}
}

// readSelections prefers the structured list while it agrees with the string field, then
// either string encoding.
func (s *Service) readSelections(ctx context.Context, rec remote.Record) []domain.ServiceSelection {
	rows := selection.FromRows(rec[lead.FieldSelectionList])
	values, enc := selection.ParseSelectionString(normalize.String(rec, lead.FieldSelectionString))
	if len(rows) > 0 {
		switch {
		case enc == selection.EncodingUnknown,
			enc == selection.SelectionEncodingV1 && sameValues(selection.IDs(rows), values),
			enc == selection.SelectionEncodingV2 && sameValues(selection.Names(rows), values):
			return rows
		}
		s.logger.Warn().Str("lead", normalize.String(rec, lead.FieldName)).Msg("stale selection rows, reading the string field")
	}
	switch enc {
	case selection.SelectionEncodingV1:
		return selection.Pair(values, nil)
	case selection.SelectionEncodingV2:
		return selection.Pair(s.selection.ResolveIDs(ctx, values), values)
	}
	return []domain.ServiceSelection{}
}

func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != strings.TrimSpace(b[i]) {
			return false
		}
	}
	return true
}

func ownerFilters(owner remote.Link, addressType string) []remote.Filter {
	return []remote.Filter{
		remote.Eq("link_doctype", owner.Doctype),
		remote.Eq("link_name", owner.Name),
		remote.Eq("address_type", addressType),
	}
}

func applyAddress(row remote.Record, street, city, zip, state, country *string) {
	set := func(dst *string, keys ...string) {
		if v := normalize.String(row, keys...); v != "" {
			*dst = v
		}
	}
	set(street, "address_line1")
	set(city, "city", "county")
	set(zip, "pincode")
	set(state, "state")
	set(country, "country")
}

// decodeFiles reads a file list stored as a JSON string or as a plain array. Malformed
// values decode to nil.
func decodeFiles(v any, logger zerolog.Logger) []domain.FileRef {
	var out []domain.FileRef
	if !decodeLoose(v, &out) {
		logger.Warn().Interface("value", v).Msg("stored file list not decodable")
		return nil
	}
	return out
}

func decodeBusinesses(v any, logger zerolog.Logger) []domain.BusinessEntry {
	var out []domain.BusinessEntry
	if !decodeLoose(v, &out) {
		logger.Warn().Msg("stored businesses not decodable")
		out = nil
	}
	if out == nil {
		out = []domain.BusinessEntry{}
	}
	return out
}

// decodeLoose decodes v into dst. Absent and empty values succeed and leave dst untouched.
func decodeLoose(v any, dst any) bool {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return true
	case string:
		if strings.TrimSpace(t) == "" {
			return true
		}
		raw = []byte(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return false
		}
		raw = b
	}
	return json.Unmarshal(raw, dst) == nil
}
