package datasets

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid dataset or comparison definition.
type ConfigError struct {
	Dataset    string
	Comparison string
	Field      string
	Message    string
}

func (e *ConfigError) Error() string {
	var parts []string
	if e.Dataset != "" {
		parts = append(parts, fmt.Sprintf("dataset %q", e.Dataset))
	}
	if e.Comparison != "" {
		parts = append(parts, fmt.Sprintf("comparison %q", e.Comparison))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field %s", e.Field))
	}
	if len(parts) == 0 {
		return "config: " + e.Message
	}
	return "config: " + strings.Join(parts, ", ") + ": " + e.Message
}
