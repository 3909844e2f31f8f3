package model

import "encoding/json"

// CanonicalJSON encodes v as JSON with object keys sorted, by round-tripping
// through a generic representation. encoding/json already sorts map keys on
// marshal; the round trip turns every struct's fields into a map so nested
// structs sort too. This is the "canonical JSON encoding with sorted keys"
// integrity hashing in spec §4.7.7/§9 depends on.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
