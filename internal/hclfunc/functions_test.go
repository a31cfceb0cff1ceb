package hclfunc

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

func TestEnvFunc(t *testing.T) {
	t.Run("existing variable", func(t *testing.T) {
		t.Setenv("CSD_TEST_VAR", "test_value")

		result, err := EnvFunc().Call([]cty.Value{cty.StringVal("CSD_TEST_VAR")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.AsString() != "test_value" {
			t.Errorf("expected 'test_value', got '%s'", result.AsString())
		}
	})

	t.Run("unset variable", func(t *testing.T) {
		result, err := EnvFunc().Call([]cty.Value{cty.StringVal("CSD_TEST_UNSET_VAR")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.AsString() != "" {
			t.Errorf("expected empty string, got '%s'", result.AsString())
		}
	})
}

func TestDefaultFunc(t *testing.T) {
	tests := []struct {
		name     string
		value    cty.Value
		fallback string
		want     string
	}{
		{"value wins", cty.StringVal("set"), "fb", "set"},
		{"empty uses fallback", cty.StringVal(""), "fb", "fb"},
		{"blank uses fallback", cty.StringVal("   "), "fb", "fb"},
		{"null uses fallback", cty.NullVal(cty.String), "fb", "fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DefaultFunc().Call([]cty.Value{tt.value, cty.StringVal(tt.fallback)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.AsString() != tt.want {
				t.Errorf("expected '%s', got '%s'", tt.want, result.AsString())
			}
		})
	}
}

func TestStringFuncs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lower", "HeLLo", "hello"},
		{"upper", "HeLLo", "HELLO"},
		{"trimspace", "  token\n", "token"},
	}

	fns := Functions()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := fns[tt.name].Call([]cty.Value{cty.StringVal(tt.in)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.AsString() != tt.want {
				t.Errorf("expected '%s', got '%s'", tt.want, result.AsString())
			}
		})
	}
}

func TestNewEvalContext(t *testing.T) {
	t.Setenv("CSD_TEST_URL", "")

	eval := func(t *testing.T, ctx *hcl.EvalContext, src string) string {
		t.Helper()
		expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
		if diags.HasErrors() {
			t.Fatalf("parse error: %s", diags.Error())
		}
		v, diags := expr.Value(ctx)
		if diags.HasErrors() {
			t.Fatalf("eval error: %s", diags.Error())
		}
		return v.AsString()
	}

	t.Run("functions only", func(t *testing.T) {
		ctx := NewEvalContext(nil)
		if ctx.Variables != nil {
			t.Error("expected no variables")
		}
		got := eval(t, ctx, `upper(default(env("CSD_TEST_URL"), "local"))`)
		if got != "LOCAL" {
			t.Errorf("expected 'LOCAL', got '%s'", got)
		}
	})

	t.Run("with variables", func(t *testing.T) {
		ctx := NewEvalContext(map[string]string{"team": "Platform"})
		got := eval(t, ctx, `lower(var.team)`)
		if got != "platform" {
			t.Errorf("expected 'platform', got '%s'", got)
		}
	})
}
