package client

// Credential is the search API key. It renders as [REDACTED] in every
// textual form so it cannot leak through logs or serialized values.
type Credential string

const redacted = "[REDACTED]"

// String implements fmt.Stringer.
func (c Credential) String() string {
	return redacted
}

// GoString implements fmt.GoStringer.
func (c Credential) GoString() string {
	return redacted
}

// MarshalText implements encoding.TextMarshaler.
func (c Credential) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Empty reports whether no key was supplied.
func (c Credential) Empty() bool {
	return c == ""
}

func (c Credential) secret() string {
	return string(c)
}
