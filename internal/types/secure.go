package types

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString prevents accidental logging or serialization of sensitive
// values such as the webhook secret and the database URL. String() and
// MarshalJSON() return a redacted placeholder; Unmask() retrieves the raw
// value where it is genuinely needed.
type SecretString string

// String returns a redacted placeholder instead of the raw value, covering
// fmt.Sprintf, fmt.Println, and anything else using fmt.Stringer.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret. Call sites should be
// limited to constructing connections and comparisons.
func (s SecretString) Unmask() string {
	return string(s)
}
