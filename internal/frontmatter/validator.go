package frontmatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"cms-go/internal/cms"
)

const schemaURL = "cms://front-matter.schema.json"

// Validator checks post front matter against a JSON Schema before a post is
// published or approved.
type Validator struct {
	schema *jsonschema.Schema
}

var _ cms.BodyValidator = (*Validator)(nil)

// NewValidator compiles a JSON Schema document.
func NewValidator(schemaJSON []byte) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing front matter schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("loading front matter schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling front matter schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// NewValidatorFromFile compiles the schema stored at path.
func NewValidatorFromFile(path string) (*Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading front matter schema: %w", err)
	}
	return NewValidator(data)
}

// Validate implements cms.BodyValidator. A post without front matter is
// validated as an empty object.
func (v *Validator) Validate(body []byte) error {
	doc, err := Parse(body)
	if err != nil {
		return err
	}
	// Round-trip through JSON so YAML scalars become the types the schema
	// library expects.
	raw, err := json.Marshal(doc.Meta)
	if err != nil {
		return fmt.Errorf("front matter: %v: %w", err, cms.ErrInvalidInput)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("front matter: %v: %w", err, cms.ErrInvalidInput)
	}
	if err := v.schema.Validate(inst); err != nil {
		return fmt.Errorf("front matter: %v: %w", err, cms.ErrInvalidInput)
	}
	return nil
}
