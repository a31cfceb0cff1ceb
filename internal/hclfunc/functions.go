// Package hclfunc holds the functions available to csd.hcl expressions.
package hclfunc

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// EnvFunc returns the value of an environment variable, or "" when unset.
//
//	token = env("CSD_TOKEN")
func EnvFunc() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "name", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.StringVal(os.Getenv(args[0].AsString())), nil
		},
	})
}

// DefaultFunc returns value unless it is null or blank, in which case it
// returns fallback.
//
//	api_url = default(env("CSD_API_URL"), "http://localhost:3000")
func DefaultFunc() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "value", Type: cty.String, AllowNull: true},
			{Name: "fallback", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if args[0].IsNull() || strings.TrimSpace(args[0].AsString()) == "" {
				return args[1], nil
			}
			return args[0], nil
		},
	})
}

func stringFunc(fn func(string) string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "str", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.StringVal(fn(args[0].AsString())), nil
		},
	})
}

// LowerFunc lowercases a string
func LowerFunc() function.Function {
	return stringFunc(strings.ToLower)
}

// UpperFunc uppercases a string
func UpperFunc() function.Function {
	return stringFunc(strings.ToUpper)
}

// TrimSpaceFunc strips leading and trailing whitespace, which is handy for
// secrets read from env files.
func TrimSpaceFunc() function.Function {
	return stringFunc(strings.TrimSpace)
}

// Functions returns every function exposed to configuration files
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"env":       EnvFunc(),
		"default":   DefaultFunc(),
		"lower":     LowerFunc(),
		"upper":     UpperFunc(),
		"trimspace": TrimSpaceFunc(),
	}
}
