// key.go derives cache keys from requests.
// The key is a hash of a canonical serialization of (script path,
// parameters): parameters are sorted by name and values rendered as
// canonical JSON (encoding/json emits map keys sorted), so two
// requests with identically-valued but differently-ordered parameters
// hit the same entry, and any value difference produces a different
// key.
package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// keyPair is one canonicalized parameter. The Sensitive flag is
// deliberately excluded: it affects logging, not the invocation.
type keyPair struct {
	Name  string          `json:"n"`
	Value json.RawMessage `json:"v"`
}

// keyEnvelope is the serialized form that gets hashed.
type keyEnvelope struct {
	Script string    `json:"script"`
	Params []keyPair `json:"params"`
}

// cacheKey computes the canonical key for a resolved script path and
// its parameters.
func cacheKey(scriptPath string, params []Param) (string, error) {
	pairs := make([]keyPair, 0, len(params))
	for _, p := range params {
		value, err := json.Marshal(p.Value)
		if err != nil {
			return "", fmt.Errorf("parameter %q not hashable: %w", p.Name, err)
		}
		pairs = append(pairs, keyPair{Name: p.Name, Value: value})
	}
	// Stable sort keeps repeated names in their relative order.
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Name < pairs[j].Name
	})

	data, err := json.Marshal(keyEnvelope{Script: scriptPath, Params: pairs})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
