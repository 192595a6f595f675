package webhook

import "encoding/json"

// Canonicalize produces the canonical wire form required by §4.7/§6:
// separators without whitespace, keys sorted. encoding/json already emits
// compact, whitespace-free output and sorts map keys lexically on its own,
// so the only work here is forcing anything that isn't already a plain
// map through one marshal/unmarshal round trip — a struct's field order
// would otherwise leak through untouched.
func Canonicalize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	if _, ok := v.(map[string]interface{}); ok {
		return raw, nil
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
