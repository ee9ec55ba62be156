package domain

import (
	"encoding/json"
	"strings"
)

// CompanyInfo is the company step of the wizard.
type CompanyInfo struct {
	CompanyName             string `json:"companyName,omitempty"`
	Street                  string `json:"street,omitempty"`
	City                    string `json:"city,omitempty"`
	ZipCode                 string `json:"zipCode,omitempty"`
	FederalState            string `json:"federalState,omitempty"`
	Country                 string `json:"country,omitempty"`
	VATIdentificationNumber string `json:"vatIdentificationNumber,omitempty"`
	TaxIDNumber             string `json:"taxIdNumber,omitempty"`
	RestaurantCount         string `json:"restaurantCount,omitempty"`
}

// HasAddress reports whether enough postal data is present to keep a billing address.
func (c CompanyInfo) HasAddress() bool {
	return strings.TrimSpace(c.Street) != "" || strings.TrimSpace(c.City) != "" || strings.TrimSpace(c.Country) != ""
}

// BusinessEntry is one physical business location. It is stored embedded in the lead
// and matched to its shop address by BusinessName.
type BusinessEntry struct {
	BusinessName           string `json:"businessName,omitempty"`
	Street                 string `json:"street,omitempty"`
	City                   string `json:"city,omitempty"`
	ZipCode                string `json:"zipCode,omitempty"`
	FederalState           string `json:"federalState,omitempty"`
	Country                string `json:"country,omitempty"`
	OwnerDirector          string `json:"ownerDirector,omitempty"`
	OwnerEmail             string `json:"ownerEmail,omitempty"`
	OwnerTelephone         string `json:"ownerTelephone,omitempty"`
	DifferentContactPerson bool   `json:"differentContactPerson,omitempty"`
	ContactPersonName      string `json:"contactPersonName,omitempty"`
	ContactPersonEmail     string `json:"contactPersonEmail,omitempty"`
	ContactPersonTelephone string `json:"contactPersonTelephone,omitempty"`
}

// Title is the address title used to match the entry to its shop address.
func (b BusinessEntry) Title() string {
	if name := strings.TrimSpace(b.BusinessName); name != "" {
		return name
	}
	return strings.TrimSpace(b.Street)
}

// PaymentInfo is the payment step of the wizard.
type PaymentInfo struct {
	AccountHolder string `json:"accountHolder,omitempty"`
	IBAN          string `json:"iban,omitempty"`
	BIC           string `json:"bic,omitempty"`
}

// FileRef references an uploaded document in the remote file store.
type FileRef struct {
	Name     string `json:"name,omitempty"`
	FileName string `json:"fileName,omitempty"`
	URL      string `json:"url,omitempty"`
}

// UnmarshalJSON accepts either a bare URL string or an object.
func (f *FileRef) UnmarshalJSON(data []byte) error {
	var url string
	if err := json.Unmarshal(data, &url); err == nil {
		*f = FileRef{URL: url}
		return nil
	}
	type plain FileRef
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*f = FileRef(out)
	return nil
}

// Document categories accepted by the documents step.
const (
	DocBusinessRegistration = "businessRegistration"
	DocID                   = "id"
	DocShareholders         = "shareholders"
	DocRegisterExtract      = "registerExtract"
	DocHRExtract            = "hrExtract"
)

// DocumentCategories lists every document category in display order.
var DocumentCategories = []string{
	DocBusinessRegistration,
	DocID,
	DocShareholders,
	DocRegisterExtract,
	DocHRExtract,
}

// Documents is the documents step of the wizard. Nil slices mean "not provided".
type Documents struct {
	TypeOfCompany             string    `json:"typeOfCompany,omitempty"`
	BusinessRegistrationFiles []FileRef `json:"businessRegistrationFiles,omitempty"`
	IDFiles                   []FileRef `json:"idFiles,omitempty"`
	ShareholdersFiles         []FileRef `json:"shareholdersFiles,omitempty"`
	RegisterExtractFiles      []FileRef `json:"registerExtractFiles,omitempty"`
	HRExtractFiles            []FileRef `json:"hrExtractFiles,omitempty"`
	IsCompleted               bool      `json:"isCompleted,omitempty"`
}

// Files returns a pointer to the list for a category, or nil for an unknown category.
func (d *Documents) Files(category string) *[]FileRef {
	switch category {
	case DocBusinessRegistration:
		return &d.BusinessRegistrationFiles
	case DocID:
		return &d.IDFiles
	case DocShareholders:
		return &d.ShareholdersFiles
	case DocRegisterExtract:
		return &d.RegisterExtractFiles
	case DocHRExtract:
		return &d.HRExtractFiles
	}
	return nil
}

// ServiceSelection is one row of the structured selection list on the lead.
type ServiceSelection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ServiceCatalogEntry is a read-only catalog item.
type ServiceCatalogEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	IsActive    bool   `json:"isActive"`
	Contracts   any    `json:"contracts"`
}

// CompanyType is a read-only legal form offered by the documents step.
type CompanyType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"isActive"`
}
