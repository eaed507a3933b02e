package index

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/eugenferber616-design/earnings-cache/internal/model"
)

// Encode produces the canonical serialized form of an index: indented JSON
// with keys in sorted order (encoding/json sorts map keys, including nested
// extras). Identical indexes encode to identical bytes regardless of how
// their maps were populated.
func Encode(idx model.Index) ([]byte, error) {
	if idx == nil {
		idx = model.Index{}
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "index: encode")
	}
	return append(data, '\n'), nil
}

// HasChanged reports whether candidate differs structurally from previous.
// The comparison goes through the canonical encoding, so it is insensitive
// to key iteration order and to the formatting of the stored artifact.
func HasChanged(previous, candidate model.Index) (bool, error) {
	prev, err := Encode(previous)
	if err != nil {
		return false, err
	}
	cand, err := Encode(candidate)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(prev, cand), nil
}
