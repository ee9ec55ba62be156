// Package extract turns free text into structured wizard fields with a generative model.
// It is a convenience for the wizard front end and never feeds the reconciliation engine.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/domain"
)

// MaxTextLength caps the document text sent to the model.
const MaxTextLength = 8000

// Generator produces a JSON answer for a system instruction and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Address is a parsed postal address.
type Address struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
	FederalState string `json:"federalState"`
}

// CompanyDocument is the company information found in a registration document.
type CompanyDocument struct {
	CompanyName             string `json:"companyName"`
	VATIdentificationNumber string `json:"vatIdentificationNumber"`
	TaxIDNumber             string `json:"taxIdNumber"`
	RestaurantCount         string `json:"restaurantCount"`
	Street                  string `json:"street"`
	City                    string `json:"city"`
	ZipCode                 string `json:"zipCode"`
	Country                 string `json:"country"`
	FederalState            string `json:"federalState"`
	BusinessName            string `json:"businessName"`
	OwnerDirector           string `json:"ownerDirector"`
	OwnerEmail              string `json:"ownerEmail"`
	OwnerTelephone          string `json:"ownerTelephone"`
}

// Extractor parses addresses and company documents.
type Extractor struct {
	gen    Generator
	logger zerolog.Logger
}

func New(gen Generator, logger zerolog.Logger) *Extractor {
	return &Extractor{gen: gen, logger: logger}
}

const addressInstruction = `You are an address parsing assistant. Parse the given address text and return ONLY a JSON object with the fields
street (street name and house number), city, postalCode, country (country name in English) and federalState (optional).
Use an empty string for any field that cannot be determined.`

const companyInstruction = `You extract company information from business registration documents. Return ONLY a JSON object with the fields
companyName, vatIdentificationNumber (USt-IdNr, Umsatzsteuer-ID), taxIdNumber (Steuernummer, St.-Nr.), restaurantCount (as a string),
street (with house number), city, postalCode (PLZ), country (in English), federalState (Bundesland, optional), businessName
(Geschäftsbezeichnung), ownerDirector (Inhaber, Geschäftsführer, Betriebsinhaber), ownerEmail and ownerTelephone.
Use an empty string for any field that cannot be found.`

// ParseAddress parses a free-text address.
func (e *Extractor) ParseAddress(ctx context.Context, text string) (*Address, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.NewValidationError("addressText", "address text is required")
	}
	var out Address
	if err := e.ask(ctx, addressInstruction, "Parse this address: "+text, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParseCompanyDocument extracts company information from document text. Only the first
// MaxTextLength characters are sent.
func (e *Extractor) ParseCompanyDocument(ctx context.Context, text, companyTypeID string) (*CompanyDocument, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.NewValidationError("text", "document text is required")
	}
	if strings.TrimSpace(companyTypeID) == "" {
		return nil, domain.NewValidationError("companyTypeId", "company type is required")
	}
	prompt := fmt.Sprintf("Extract company information from this business registration document. Company Type ID: %s.\n\nDocument text:\n%s",
		strings.TrimSpace(companyTypeID), truncate(text, MaxTextLength))

	var raw struct {
		CompanyDocument
		PostalCode string `json:"postalCode"`
	}
	if err := e.ask(ctx, companyInstruction, prompt, &raw); err != nil {
		return nil, err
	}
	out := raw.CompanyDocument
	if out.ZipCode == "" {
		out.ZipCode = raw.PostalCode
	}
	return &out, nil
}

func (e *Extractor) ask(ctx context.Context, system, prompt string, dst any) error {
	answer, err := e.gen.Generate(ctx, system, prompt)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := json.Unmarshal([]byte(stripFence(answer)), dst); err != nil {
		e.logger.Warn().Err(err).Int("answer_len", len(answer)).Msg("model answer is not JSON")
		return fmt.Errorf("decode model answer: %w", err)
	}
	return nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
