package config

import "encoding/json"

const redactedSecret = "[REDACTED]"

// Secret is a credential loaded from config: a DSN, URI or password.
// Formatting and JSON encoding never reveal it; Value does.
type Secret string

// Value returns the credential.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether the credential is non-empty.
func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redactedSecret
}

// GoString keeps %#v from printing the credential.
func (s Secret) GoString() string { return "config.Secret(" + s.String() + ")" }

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
