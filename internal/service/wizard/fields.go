package wizard

// Lead fields written from the wizard steps. Some store installations carry a doubled
// custom prefix; the read path accepts both spellings.
const (
	fieldAddressLine1 = "address_line1"
	fieldCity         = "city"
	fieldPincode      = "pincode"
	fieldState        = "state"
	fieldCountry      = "country"
	fieldPhone        = "phone"
	fieldMobile       = "mobile_no"

	fieldVAT           = "custom_vat_identification_number"
	fieldTaxID         = "custom_custom_tax_id_number"
	fieldTaxIDSingle   = "custom_tax_id_number"
	fieldBusinesses    = "custom_businesses"
	fieldAccountHolder = "custom_account_holder"
	fieldIBAN          = "custom_iban"
	fieldBIC           = "custom_bic"
	fieldBICDouble     = "custom_custom_bic"
	fieldTypeOfCompany = "custom_type_of_company"
	fieldRegistration  = "custom_registration_status"

	registrationCompleted = "Completed"
)

// fileFields maps a document category to the lead field holding its JSON-encoded list.
var fileFields = map[string]string{
	"businessRegistration": "custom_business_registration_files",
	"id":                   "custom_id_files",
	"shareholders":         "custom_shareholders_files",
	"registerExtract":      "custom_register_extract_files",
	"hrExtract":            "custom_hr_extract_files",
}

// Registrant profile sources.
const (
	userDoctype     = "User"
	registerDoctype = "Custom User Register"
)
