package config

import (
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

func TestConfigParseDuration(t *testing.T) {
	config := &Config{
		Logger: zap.NewNop(),
		evalCtx: &hcl.EvalContext{
			Variables: map[string]cty.Value{
				"delay": cty.StringVal("45s"),
			},
		},
	}

	tests := []struct {
		name        string
		input       string
		expected    time.Duration
		expectError bool
	}{
		{name: "integer seconds", input: "30", expected: 30 * time.Second},
		{name: "float seconds", input: "1.5", expected: 1500 * time.Millisecond},
		{name: "zero seconds", input: "0", expected: 0},
		{name: "negative seconds", input: "-5", expectError: true},
		{name: "ISO 8601 minutes", input: `"PT5M"`, expected: 5 * time.Minute},
		{name: "ISO 8601 hours and minutes", input: `"PT1H30M"`, expected: 90 * time.Minute},
		{name: "ISO 8601 with surrounding space", input: `" PT10S "`, expected: 10 * time.Second},
		{name: "invalid ISO 8601", input: `"PXYZ"`, expectError: true},
		{name: "Go duration", input: `"1m30s"`, expected: 90 * time.Second},
		{name: "Go milliseconds", input: `"250ms"`, expected: 250 * time.Millisecond},
		{name: "negative Go duration", input: `"-1s"`, expectError: true},
		{name: "invalid string", input: `"soon"`, expectError: true},
		{name: "variable", input: "delay", expected: 45 * time.Second},
		{name: "unknown variable", input: "missing", expectError: true},
		{name: "bool", input: "true", expectError: true},
		{name: "null", input: "null", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, parseDiags := hclsyntax.ParseExpression([]byte(tt.input), "test.hcl", hcl.Pos{Line: 1, Column: 1})
			require.False(t, parseDiags.HasErrors(), parseDiags.Error())

			result, diags := config.ParseDuration(expr)
			if tt.expectError {
				assert.True(t, diags.HasErrors())
				assert.Zero(t, result)
				return
			}
			assert.False(t, diags.HasErrors(), diags.Error())
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsExpressionProvided(t *testing.T) {
	expr, diags := hclsyntax.ParseExpression([]byte(`"5s"`), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors())

	assert.True(t, IsExpressionProvided(expr))
	assert.False(t, IsExpressionProvided(nil))
	assert.False(t, IsExpressionProvided(hcl.StaticExpr(cty.NullVal(cty.String), hcl.Range{})))
}

func TestOptionalDuration(t *testing.T) {
	config := &Config{evalCtx: &hcl.EvalContext{}}

	target := 10 * time.Second
	assert.False(t, config.optionalDuration(nil, &target).HasErrors())
	assert.Equal(t, 10*time.Second, target)

	expr, _ := hclsyntax.ParseExpression([]byte(`"2s"`), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	assert.False(t, config.optionalDuration(expr, &target).HasErrors())
	assert.Equal(t, 2*time.Second, target)

	expr, _ = hclsyntax.ParseExpression([]byte(`"later"`), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	assert.True(t, config.optionalDuration(expr, &target).HasErrors())
	assert.Equal(t, 2*time.Second, target)
}
