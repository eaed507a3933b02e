package index

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenferber616-design/earnings-cache/internal/model"
)

func indexEntry(symbol, date string) model.IndexEntry {
	return model.IndexEntry{Symbol: symbol, NextEarningsDate: date, Time: "tbd", SameDayCount: 1}
}

func TestHasChangedDetectsDifference(t *testing.T) {
	prev := model.Index{"A": indexEntry("A", "2024-05-01")}

	moved := model.Index{"A": indexEntry("A", "2024-05-08")}
	changed, err := HasChanged(prev, moved)
	require.NoError(t, err)
	assert.True(t, changed)

	added := model.Index{
		"A": indexEntry("A", "2024-05-01"),
		"B": indexEntry("B", "2024-06-01"),
	}
	changed, err = HasChanged(prev, added)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = HasChanged(prev, model.Index{})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestHasChangedIdentical(t *testing.T) {
	a := model.Index{
		"A": indexEntry("A", "2024-05-01"),
		"B": indexEntry("B", "2024-06-01"),
	}
	// Populate a second map in the opposite order; iteration order must
	// never leak into the verdict.
	b := model.Index{}
	b["B"] = indexEntry("B", "2024-06-01")
	b["A"] = indexEntry("A", "2024-05-01")

	changed, err := HasChanged(a, b)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestHasChangedNilEqualsEmpty(t *testing.T) {
	changed, err := HasChanged(nil, model.Index{})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEncodeCanonical(t *testing.T) {
	idx := model.Index{
		"MSFT": indexEntry("MSFT", "2024-06-01"),
		"AAPL": indexEntry("AAPL", "2024-05-01"),
	}

	first, err := Encode(idx)
	require.NoError(t, err)
	second, err := Encode(idx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Keys come out sorted regardless of insertion order.
	var keys []string
	dec := json.NewDecoder(bytes.NewReader(first))
	_, err = dec.Token() // opening brace
	require.NoError(t, err)
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		if key, ok := tok.(string); ok {
			keys = append(keys, key)
			var skip json.RawMessage
			require.NoError(t, dec.Decode(&skip))
		}
	}
	assert.Equal(t, []string{"AAPL", "MSFT"}, keys)
}

func TestEncodeRoundTripsThroughLoad(t *testing.T) {
	idx := model.Index{"AAPL": indexEntry("AAPL", "2024-05-01")}
	idx["AAPL"] = model.IndexEntry{
		Symbol:           "AAPL",
		NextEarningsDate: "2024-05-01",
		Time:             "amc",
		SameDayCount:     2,
		Extra:            map[string]json.RawMessage{"epsEstimate": json.RawMessage(`1.25`)},
	}

	encoded, err := Encode(idx)
	require.NoError(t, err)

	var back model.Index
	require.NoError(t, json.Unmarshal(encoded, &back))

	changed, err := HasChanged(idx, back)
	require.NoError(t, err)
	assert.False(t, changed, "decode of the canonical form must compare equal")
}
