package hclfunc

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// NewEvalContext builds the context used to decode csd.hcl. vars, when
// non-empty, are exposed as var.<name>.
func NewEvalContext(vars map[string]string) *hcl.EvalContext {
	ctx := &hcl.EvalContext{
		Functions: Functions(),
	}
	if len(vars) == 0 {
		return ctx
	}

	values := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		values[k] = cty.StringVal(v)
	}
	ctx.Variables = map[string]cty.Value{
		"var": cty.ObjectVal(values),
	}
	return ctx
}
