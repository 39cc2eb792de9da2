package testcase

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// schemaValidator holds the compiled fixture schema. A cue.Context is not safe
// for concurrent use, so every validation takes the lock.
type schemaValidator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

var (
	validatorOnce sync.Once
	validator     *schemaValidator
	validatorErr  error
)

func loadValidator() (*schemaValidator, error) {
	validatorOnce.Do(func() {
		ctx := cuecontext.New()
		root := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if root.Err() != nil {
			validatorErr = fmt.Errorf("compiling fixture schema: %w", root.Err())
			return
		}
		schema := root.LookupPath(cue.ParsePath("#TestCase"))
		if !schema.Exists() {
			validatorErr = fmt.Errorf("fixture schema has no #TestCase definition")
			return
		}
		validator = &schemaValidator{ctx: ctx, schema: schema}
	})
	return validator, validatorErr
}

// Validate checks JSON fixture bytes against the embedded CUE schema.
// It covers structure and numeric bounds; semantic checks happen in Parse.
func Validate(raw []byte) error {
	v, err := loadValidator()
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	data := v.ctx.CompileBytes(raw, cue.Filename("fixture.json"))
	if data.Err() != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, data.Err())
	}

	unified := v.schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
