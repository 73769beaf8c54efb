// Package groups resolves the serialization context for an operation:
// which field-visibility group sets govern the input and output of the
// response, and the shaping of records against them.
package groups

import (
	"github.com/resolvent-dev/resolvent/internal/descriptor"
)

// Context is the resolved serialization context for one operation.
// Output (normalization) and Input (denormalization) group sets are
// resolved independently and may differ within the same mutation.
// Queries carry no input set.
type Context struct {
	Output []string
	Input  []string
}

// ResolveContext picks the active group sets for the operation with
// override precedence: the operation override's groups when declared,
// else the resource's base groups.
func ResolveContext(res *descriptor.Resource, op descriptor.Operation) Context {
	ctx := Context{
		Output: res.NormalizationGroups,
	}
	if op.IsMutation() {
		ctx.Input = res.DenormalizationGroups
	}

	if ov := res.Operations[op]; ov != nil {
		if len(ov.NormalizationGroups) > 0 {
			ctx.Output = ov.NormalizationGroups
		}
		if op.IsMutation() && len(ov.DenormalizationGroups) > 0 {
			ctx.Input = ov.DenormalizationGroups
		}
	}
	return ctx
}

// Visible reports whether the field belongs to the active group set.
// An empty active set means no group restriction is configured and
// every field is visible.
func Visible(field *descriptor.Field, active []string) bool {
	if len(active) == 0 {
		return true
	}
	for _, g := range field.Groups {
		for _, a := range active {
			if g == a {
				return true
			}
		}
	}
	return false
}

// Shape returns a copy of the record restricted to fields visible
// under the active output group set. Fields outside the set are
// omitted entirely, never null-filled. Keys not declared as fields are
// dropped.
func Shape(res *descriptor.Resource, record map[string]interface{}, output []string) map[string]interface{} {
	if record == nil {
		return nil
	}
	shaped := make(map[string]interface{}, len(record))
	for i := range res.Fields {
		field := &res.Fields[i]
		if !Visible(field, output) {
			continue
		}
		if v, ok := record[field.Name]; ok {
			shaped[field.Name] = v
		}
	}
	return shaped
}

// Accept returns a copy of the submitted input restricted to fields
// visible under the active input group set. Submitted fields outside
// the set are silently ignored, not rejected. Relation fields pass
// through as identifiers.
func Accept(res *descriptor.Resource, input map[string]interface{}, active []string) map[string]interface{} {
	accepted := make(map[string]interface{}, len(input))
	for i := range res.Fields {
		field := &res.Fields[i]
		if !Visible(field, active) {
			continue
		}
		if v, ok := input[field.Name]; ok {
			accepted[field.Name] = v
		}
	}
	return accepted
}
