package discovery

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

//go:embed candidates.yaml
var defaultCandidates []byte

// Candidates are the ordered resource type names probed per concept.
type Candidates struct {
	Services          []string `yaml:"services"`
	CompanyTypes      []string `yaml:"company_types"`
	ReferenceSubjects []string `yaml:"reference_subjects"`
}

// Default returns the built-in candidate sets.
func Default() Candidates {
	c, err := Parse(defaultCandidates)
	if err != nil {
		panic(fmt.Sprintf("embedded discovery candidates: %v", err))
	}
	return c
}

// Parse decodes a candidates document.
func Parse(data []byte) (Candidates, error) {
	var c Candidates
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Candidates{}, fmt.Errorf("parse discovery candidates: %w", err)
	}
	return c, nil
}

// Load returns the defaults overlaid with the sets defined in the file at path. Sets the
// file leaves empty keep their defaults. An empty path yields the defaults.
func Load(path string) (Candidates, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Candidates{}, fmt.Errorf("read discovery candidates %s: %w", path, err)
	}
	override, err := Parse(data)
	if err != nil {
		return Candidates{}, err
	}
	if len(override.Services) > 0 {
		c.Services = override.Services
	}
	if len(override.CompanyTypes) > 0 {
		c.CompanyTypes = override.CompanyTypes
	}
	if len(override.ReferenceSubjects) > 0 {
		c.ReferenceSubjects = override.ReferenceSubjects
	}
	return c, nil
}
