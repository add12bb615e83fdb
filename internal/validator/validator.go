package validator

// =============================================================================
// VALIDATOR PHILOSOPHY: CRASH EARLY, CRASH LOUD
// =============================================================================
//
// The CUE schemas are the contract between netres and the programs around it:
// the simulator plugin that exports the hierarchy, the external resolver
// generator, and whatever consumes the JSON run summary.
//
// Without validation a renamed field decodes to its zero value. A generator
// that answers {"files": ...} instead of {"artifacts": ...} would look like
// "no artifacts", and the run would report success with nothing written.
//
// With validation the mismatch is an error naming the offending field, and
// the run stops before any cached artifact is touched.
// =============================================================================

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed hierarchy_schema.cue
var hierarchySchemaFS embed.FS

//go:embed generator_schema.cue
var generatorSchemaFS embed.FS

//go:embed summary_schema.cue
var summarySchemaFS embed.FS

// contract is one compiled CUE schema file.
type contract struct {
	ctx    *cue.Context
	schema cue.Value
}

func loadContract(fs embed.FS, name string) (*contract, error) {
	ctx := cuecontext.New()

	schemaBytes, err := fs.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("loading embedded schema %s: %w", name, err)
	}

	schema := ctx.CompileBytes(schemaBytes)
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", name, schema.Err())
	}

	return &contract{ctx: ctx, schema: schema}, nil
}

// validate marshals data to JSON and checks it against definition.
func (c *contract) validate(data interface{}, definition string) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling data to JSON: %w", err)
	}
	return c.validateJSON(jsonBytes, definition)
}

func (c *contract) validateJSON(jsonBytes []byte, definition string) error {
	dataValue := c.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return fmt.Errorf("compiling JSON as CUE: %w", dataValue.Err())
	}

	def := c.schema.LookupPath(cue.ParsePath(definition))
	if def.Err() != nil {
		return fmt.Errorf("looking up %s definition: %w", definition, def.Err())
	}

	unified := def.Unify(dataValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s schema validation failed: %w", definition, err)
	}
	return nil
}

// details flattens a CUE error into one line per problem.
func details(err error) []string {
	if err == nil {
		return nil
	}
	var out []string
	for _, e := range errors.Errors(err) {
		out = append(out, e.Error())
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}

// HierarchyValidator checks hierarchy exports before they are walked.
type HierarchyValidator struct {
	c *contract
}

// NewHierarchyValidator creates a validator for hierarchy exports.
func NewHierarchyValidator() (*HierarchyValidator, error) {
	c, err := loadContract(hierarchySchemaFS, "hierarchy_schema.cue")
	if err != nil {
		return nil, err
	}
	return &HierarchyValidator{c: c}, nil
}

// Validate checks a decoded export document.
func (v *HierarchyValidator) Validate(doc interface{}) error {
	return v.c.validate(doc, "#Hierarchy")
}

// ValidateJSON checks raw export bytes.
func (v *HierarchyValidator) ValidateJSON(jsonBytes []byte) error {
	return v.c.validateJSON(jsonBytes, "#Hierarchy")
}

// ValidationErrors returns every problem found in doc, one per entry.
func (v *HierarchyValidator) ValidationErrors(doc interface{}) []string {
	return details(v.Validate(doc))
}

// GeneratorValidator checks the request sent to, and the response read back
// from, the external resolver generator.
type GeneratorValidator struct {
	c *contract
}

// NewGeneratorValidator creates a validator for the generator protocol.
func NewGeneratorValidator() (*GeneratorValidator, error) {
	c, err := loadContract(generatorSchemaFS, "generator_schema.cue")
	if err != nil {
		return nil, err
	}
	return &GeneratorValidator{c: c}, nil
}

// ValidateRequest checks a request before it is sent.
func (v *GeneratorValidator) ValidateRequest(req interface{}) error {
	return v.c.validate(req, "#GeneratorRequest")
}

// ValidateRequestJSON checks a marshaled request.
func (v *GeneratorValidator) ValidateRequestJSON(jsonBytes []byte) error {
	return v.c.validateJSON(jsonBytes, "#GeneratorRequest")
}

// ValidateResponseJSON checks the generator's raw reply.
func (v *GeneratorValidator) ValidateResponseJSON(jsonBytes []byte) error {
	return v.c.validateJSON(jsonBytes, "#GeneratorResponse")
}

// SummaryValidator checks the JSON run summary before it is emitted.
type SummaryValidator struct {
	c *contract
}

// NewSummaryValidator creates a validator for run summaries.
func NewSummaryValidator() (*SummaryValidator, error) {
	c, err := loadContract(summarySchemaFS, "summary_schema.cue")
	if err != nil {
		return nil, err
	}
	return &SummaryValidator{c: c}, nil
}

// Validate checks that the summary conforms to the output schema.
func (v *SummaryValidator) Validate(summary interface{}) error {
	return v.c.validate(summary, "#RunSummary")
}
