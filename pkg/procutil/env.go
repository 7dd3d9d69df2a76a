package procutil

import (
	"os"
	"strings"
)

// EnvVar names an environment variable read by the memcompile tools.
type EnvVar string

// LookupBoolEnv reports the boolean value of name, or defaultValue when the
// variable is unset or not one of true/false/1/0.
func LookupBoolEnv(name EnvVar, defaultValue bool) bool {
	if val, ok := os.LookupEnv(string(name)); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
	}
	return defaultValue
}

// LookupEnv returns the value of name. An empty value counts as unset.
func LookupEnv(name EnvVar) (string, bool) {
	val, ok := os.LookupEnv(string(name))
	if !ok || val == "" {
		return "", false
	}
	return val, true
}
