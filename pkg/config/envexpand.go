package config

import (
	"os"
	"regexp"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv expands ${VAR} and ${VAR:-default} references in YAML content.
// Only the braced form is recognized, so bare $ characters in passwords or
// command strings pass through untouched. A missing variable without a
// default expands to the empty string; validation catches required fields
// left empty.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envRef.FindSubmatch(match)
		name := string(groups[1])
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		if len(groups[2]) > 0 {
			return groups[3]
		}
		return nil
	})
}
