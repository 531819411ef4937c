// Package codec converts a structured parameter list into the argument
// vector the legacy automation scripts expect.
//
// Every parameter becomes a named argument pair ("-Name", "value"),
// never a concatenated command string, so the spawn primitive passes
// arguments as a vector and shell metacharacters in values carry no
// special meaning. Booleans follow command-line flag convention:
// present when true, omitted when false. Lists and nested mappings are
// serialized to one compact JSON value so the script receives a single
// parseable blob instead of ambiguous repeated flags.
//
// Encoding is one-directional; the scripts never send parameters back.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Param is one named parameter of a script invocation. Order is
// significant for the encoded argument vector (not for caching, which
// canonicalizes independently).
type Param struct {
	// Name is the parameter name without the leading dash.
	Name string `json:"name"`

	// Value may be a string, bool, integer, float, list, or nested
	// mapping. Nil values are omitted from the encoded vector.
	Value any `json:"value"`

	// Sensitive marks the value for redaction in audit logs and
	// diagnostic output. It does not affect the encoded vector.
	Sensitive bool `json:"sensitive,omitempty"`
}

// redactedValue replaces sensitive values in diagnostic argv copies.
const redactedValue = "***"

// Encode converts parameters into an argument vector, preserving
// parameter order. It returns the real vector and a redacted copy safe
// for logging (sensitive values replaced, identical shape otherwise).
func Encode(params []Param) (argv []string, redacted []string, err error) {
	for _, p := range params {
		if p.Name == "" {
			return nil, nil, fmt.Errorf("parameter with empty name")
		}

		switch v := p.Value.(type) {
		case nil:
			// No value to pass; skip entirely.
			continue
		case bool:
			// Presence/absence flag: no value argument.
			if v {
				argv = append(argv, "-"+p.Name)
				redacted = append(redacted, "-"+p.Name)
			}
			continue
		}

		encoded, err := encodeValue(p.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}

		argv = append(argv, "-"+p.Name, encoded)
		if p.Sensitive {
			redacted = append(redacted, "-"+p.Name, redactedValue)
		} else {
			redacted = append(redacted, "-"+p.Name, encoded)
		}
	}
	return argv, redacted, nil
}

// encodeValue renders a single non-bool, non-nil parameter value.
// Scalars encode as their plain text form; lists and mappings encode
// as compact JSON.
func encodeValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case json.Number:
		return v.String(), nil
	default:
		// Lists and nested mappings become one compact JSON blob.
		blob, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("value not encodable: %w", err)
		}
		return string(blob), nil
	}
}
