package config

import (
	"os"
	"regexp"
)

// envRefRe matches ${VAR} and ${VAR:-default}.
var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnvWithDefaults replaces ${VAR} with the variable's value and
// ${VAR:-default} with the value, or default when the variable is unset or
// empty. Other text, including bare $VAR, is left alone.
func ExpandEnvWithDefaults(s string) string {
	return envRefRe.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRefRe.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}
