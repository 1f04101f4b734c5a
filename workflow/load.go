package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Manifest constants.
const (
	ManifestAPIVersion = "edenkit.io/v1"
	ManifestKind       = "Workflow"
)

// Manifest is the K8s-style envelope a definition may be wrapped in.
type Manifest struct {
	APIVersion string            `json:"apiVersion"`
	Kind       string            `json:"kind"`
	Metadata   metav1.ObjectMeta `json:"metadata"`
	Spec       json.RawMessage   `json:"spec"`
}

// LoadFile reads and validates a definition from a YAML or JSON file.
func LoadFile(path string, opts ...ValidateOption) (*Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	return LoadBytes(filepath.Base(path), data, opts...)
}

// LoadBytes parses and validates a definition. YAML and JSON are both
// accepted, either plain or wrapped in a Manifest. The name is used only in
// error messages. Any schema or semantic error is returned as a
// *ValidationError; warnings are logged.
func LoadBytes(name string, data []byte, opts ...ValidateOption) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Workflow: name, Problems: []string{"parse: " + err.Error()}}
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{Workflow: name, Problems: []string{"document must be a mapping"}}
	}

	specJSON, err := unwrapManifest(name, doc)
	if err != nil {
		return nil, err
	}
	if problems, err := ValidateSchema(specJSON); err != nil {
		return nil, err
	} else if len(problems) > 0 {
		return nil, &ValidationError{Workflow: name, Problems: problems}
	}

	var def Definition
	if err := json.Unmarshal(specJSON, &def); err != nil {
		return nil, &ValidationError{Workflow: name, Problems: []string{"decode: " + err.Error()}}
	}
	res := Validate(&def, opts...)
	res.log(def.Name)
	if res.HasErrors() {
		return nil, res.Err(def.Name)
	}
	return &def, nil
}

// unwrapManifest returns the definition JSON, taking it from spec when doc is
// a manifest. metadata.name overrides the definition name.
func unwrapManifest(name string, doc map[string]any) ([]byte, error) {
	if _, isManifest := doc["apiVersion"]; !isManifest {
		return json.Marshal(doc)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, &ValidationError{Workflow: name, Problems: []string{"manifest: " + err.Error()}}
	}
	var problems []string
	if m.APIVersion != ManifestAPIVersion {
		problems = append(problems, fmt.Sprintf("apiVersion must be %q, got %q", ManifestAPIVersion, m.APIVersion))
	}
	if m.Kind != ManifestKind {
		problems = append(problems, fmt.Sprintf("kind must be %q, got %q", ManifestKind, m.Kind))
	}
	if m.Metadata.Name == "" {
		problems = append(problems, "metadata.name is required")
	}
	if len(m.Spec) == 0 {
		problems = append(problems, "spec is required")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Workflow: name, Problems: problems}
	}

	var spec map[string]any
	if err := json.Unmarshal(m.Spec, &spec); err != nil {
		return nil, &ValidationError{Workflow: name, Problems: []string{"spec: " + err.Error()}}
	}
	spec["name"] = m.Metadata.Name
	return json.Marshal(spec)
}
