package config

// Secret is a string type that redacts itself when printed
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString ensures secrets are redacted under %#v. Unlike String, it returns
// "[REDACTED]" even for an empty secret.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// MarshalJSON ensures secrets are redacted when marshaled to JSON
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// MarshalYAML ensures secrets are redacted when the config is dumped as YAML.
func (s Secret) MarshalYAML() (interface{}, error) {
	return "[REDACTED]", nil
}

// UnmarshalYAML reads the underlying value normally; only serialization is redacted.
func (s *Secret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*s = Secret(raw)
	return nil
}
