package envutil

import (
	"os"
	"strings"
)

// Bool reads an environment variable as a boolean flag.
func Bool(key string) bool {
	return ParseBool(os.Getenv(key))
}

// ParseBool accepts the usual truthy spellings; anything else is false.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
