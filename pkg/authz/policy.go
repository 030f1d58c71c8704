package authz

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/auth"
	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// SupportedPolicyVersions is the semver constraint a policy file's version must satisfy.
const SupportedPolicyVersions = "^1.0.0"

const policySchemaURL = "evidentia://schemas/policy.json"

//go:embed policy.schema.json
var policySchema string

// PolicyError reports a policy file that failed to load.
type PolicyError struct {
	Source string
	Err    error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy %s: %v", e.Source, e.Err)
}

func (e *PolicyError) Unwrap() error { return e.Err }

type policyDocument struct {
	Version              string                  `yaml:"version" json:"version"`
	AnalysisOrganization string                  `yaml:"analysis_organization" json:"analysis_organization"`
	Roles                map[string][]Permission `yaml:"roles" json:"roles"`
	Organizations        map[string][]Permission `yaml:"organizations" json:"organizations"`
}

// LoadPolicy reads and validates a YAML policy file.
func LoadPolicy(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, &PolicyError{Source: path, Err: err}
	}
	t, err := ParsePolicy(data)
	if err != nil {
		var pe *PolicyError
		if errors.As(err, &pe) {
			pe.Source = path
			return Tables{}, pe
		}
		return Tables{}, &PolicyError{Source: path, Err: err}
	}
	return t, nil
}

// ParsePolicy decodes a YAML policy document, validates it against the
// embedded schema and the supported version range, and returns its tables.
func ParsePolicy(data []byte) (Tables, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Tables{}, &PolicyError{Source: "<inline>", Err: fmt.Errorf("decode yaml: %w", err)}
	}
	if err := validatePolicyDocument(raw); err != nil {
		return Tables{}, &PolicyError{Source: "<inline>", Err: err}
	}
	var doc policyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Tables{}, &PolicyError{Source: "<inline>", Err: fmt.Errorf("decode yaml: %w", err)}
	}

	constraint, err := semver.NewConstraint(SupportedPolicyVersions)
	if err != nil {
		return Tables{}, err
	}
	v, err := semver.NewVersion(doc.Version)
	if err != nil {
		return Tables{}, &PolicyError{Source: "<inline>", Err: fmt.Errorf("invalid version %q: %w", doc.Version, err)}
	}
	if !constraint.Check(v) {
		return Tables{}, &PolicyError{Source: "<inline>", Err: fmt.Errorf("version %s does not satisfy %s", v, SupportedPolicyVersions)}
	}

	t := Tables{
		Roles:                make(map[auth.Role][]Permission, len(doc.Roles)),
		Organizations:        make(map[auth.Organization][]Permission, len(doc.Organizations)),
		AnalysisOrganization: auth.Organization(doc.AnalysisOrganization),
	}
	for role, perms := range doc.Roles {
		t.Roles[auth.Role(role)] = append([]Permission(nil), perms...)
	}
	for org, perms := range doc.Organizations {
		t.Organizations[auth.Organization(org)] = append([]Permission(nil), perms...)
	}
	if _, ok := t.Organizations[t.AnalysisOrganization]; !ok {
		return Tables{}, &PolicyError{Source: "<inline>", Err: fmt.Errorf("analysis_organization %q has no permission entry", doc.AnalysisOrganization)}
	}
	return t, nil
}

func validatePolicyDocument(doc any) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(policySchemaURL, strings.NewReader(policySchema)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(policySchemaURL)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	// Round-trip through JSON so the validator sees plain JSON values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// MarshalPolicy renders tables as a YAML policy document at version 1.0.0.
func MarshalPolicy(t Tables) ([]byte, error) {
	doc := policyDocument{
		Version:              "1.0.0",
		AnalysisOrganization: string(t.AnalysisOrganization),
		Roles:                make(map[string][]Permission, len(t.Roles)),
		Organizations:        make(map[string][]Permission, len(t.Organizations)),
	}
	sorted := NewEngine(t).Tables()
	for role, perms := range sorted.Roles {
		doc.Roles[string(role)] = perms
	}
	for org, perms := range sorted.Organizations {
		doc.Organizations[string(org)] = perms
	}
	return yaml.Marshal(doc)
}
