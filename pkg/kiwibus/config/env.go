package config

import (
	"os"
	"strings"

	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"github.com/zclconf/go-cty/cty"
)

// GetEnvObject returns a cty object containing all environment variables
// as attributes, suitable for providing to an HCL evaluation context.
func GetEnvObject() cty.Value {
	envMap := make(map[string]cty.Value)

	for _, envVar := range os.Environ() {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}
		envMap[sanitizeEnvVarName(key)] = cty.StringVal(value)
	}

	return cty.ObjectVal(envMap)
}

// sanitizeEnvVarName converts environment variable names to valid HCL attribute names.
func sanitizeEnvVarName(name string) string {
	if name == "" {
		return "_"
	}

	var result strings.Builder

	for i, char := range name {
		if isValidChar(char) && (i > 0 || isValidFirstChar(char)) {
			result.WriteRune(char)
		} else {
			result.WriteRune('_')
		}
	}

	return result.String()
}

func isValidFirstChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isValidChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

// getCodeObject exposes the reply codes to config files, e.g. code.not_found.
func getCodeObject() cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"ok":                    cty.NumberIntVal(eventbus.CodeOK),
		"bad_request":           cty.NumberIntVal(eventbus.CodeBadRequest),
		"unauthorized":          cty.NumberIntVal(eventbus.CodeUnauthorized),
		"not_found":             cty.NumberIntVal(eventbus.CodeNotFound),
		"timeout":               cty.NumberIntVal(eventbus.CodeTimeout),
		"token_expired":         cty.NumberIntVal(eventbus.CodeTokenExpired),
		"internal_server_error": cty.NumberIntVal(eventbus.CodeInternalServerError),
		"service_unavailable":   cty.NumberIntVal(eventbus.CodeServiceUnavailable),
	})
}
