// internal/config/types.go
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration decodes "30s"-style strings from YAML and env vars. Negative
// values are rejected at parse time so downstream code never sees one.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q is negative", text)
	}
	*d = Duration(parsed)
	return nil
}

// Duration converts to the stdlib type.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds credentials such as the inference API key. Every textual
// rendering redacts; only Value exposes the real string, at the single
// call site that hands it to the transport.
type Secret string

// String implements fmt.Stringer, redacted.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// MarshalJSON implements json.Marshaler, redacted, so a logged or dumped
// config never leaks the key.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Value returns the underlying secret.
func (s Secret) Value() string {
	return string(s)
}
