package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/checktick/internal/apperr"
)

// Patch is a partial field update keyed by JSON field name.
type Patch map[string]any

// Merge returns a new patch holding p's fields overlaid with later's.
func (p Patch) Merge(later Patch) Patch {
	out := make(Patch, len(p)+len(later))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range later {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy.
func (p Patch) Clone() Patch {
	return Patch{}.Merge(p)
}

// Keys returns the patched field names in sorted order.
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyPatch overlays p on v through its JSON shape. Unknown fields and values
// of the wrong type are reported as validation errors.
func ApplyPatch[T any](v T, p Patch) (T, error) {
	var zero T
	if len(p) == 0 {
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("models: encode entity: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, fmt.Errorf("models: decode entity fields: %w", err)
	}
	for k, val := range p {
		enc, err := json.Marshal(val)
		if err != nil {
			return zero, apperr.Invalid(k, "cannot encode value: %v", err)
		}
		fields[k] = enc
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("models: encode patched entity: %w", err)
	}

	var out T
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return zero, apperr.Invalid(typeErr.Field, "expected %s, got %s", typeErr.Type, typeErr.Value)
		}
		if strings.HasPrefix(err.Error(), "json: unknown field ") {
			field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
			return zero, apperr.Invalid(field, "unknown field")
		}
		return zero, apperr.Invalid("", "%v", err)
	}
	return out, nil
}

// validationError converts ozzo-validation output to the first field error
// in name order.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return apperr.Invalid("", "%v", err)
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if errs[k] != nil {
			return &apperr.ValidationError{Field: k, Message: errs[k].Error()}
		}
	}
	return nil
}
