package ruleset

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource []byte

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
	schemaErr  error
)

// schema compiles the embedded CUE schema once per process.
func schema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaVal = schemaCtx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
		if err := schemaVal.Err(); err != nil {
			schemaErr = fmt.Errorf("compile ruleset schema: %w", err)
		}
	})
	return schemaCtx, schemaVal, schemaErr
}

// CheckSchema unifies a decoded document with the #RuleSet definition
// and reports every structural violation. It does not require
// concreteness beyond what the schema demands, so optional fields may
// be absent.
func CheckSchema(doc map[string]any) []ValidationError {
	ctx, sv, err := schema()
	if err != nil {
		return []ValidationError{{
			Field:   "schema",
			Message: err.Error(),
			Code:    ErrSchemaViolation,
		}}
	}

	def := sv.LookupPath(cue.ParsePath("#RuleSet"))
	if err := def.Err(); err != nil {
		return []ValidationError{{
			Field:   "schema",
			Message: err.Error(),
			Code:    ErrSchemaViolation,
		}}
	}

	unified := def.Unify(ctx.Encode(doc))
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueValidationErrors(err)
	}
	return nil
}

// cueValidationErrors flattens a CUE error list into our error shape.
func cueValidationErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		field := "document"
		if p := e.Path(); len(p) > 0 {
			field = joinPath(p)
		}
		out = append(out, ValidationError{
			Field:   field,
			Message: e.Error(),
			Code:    ErrSchemaViolation,
		})
	}
	if len(out) == 0 {
		out = append(out, ValidationError{
			Field:   "document",
			Message: err.Error(),
			Code:    ErrSchemaViolation,
		})
	}
	return out
}

func joinPath(parts []string) string {
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += "."
		}
		s += p
	}
	return s
}
