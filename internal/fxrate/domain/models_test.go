package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestRateDecodesPersistedNumbers(t *testing.T) {
	snapshot := &CurrencyRate{Rates: datatypes.JSONMap{
		"EUR": json.Number("0.9"),
		"JPY": float64(150),
		"GBP": "0.78",
		"IDR": int64(16000),
		"BAD": json.Number("not-a-number"),
		"NEG": json.Number("-3"),
	}}

	require.InDelta(t, 0.9, snapshot.Rate("EUR"), 1e-9)
	require.InDelta(t, 150.0, snapshot.Rate("JPY"), 1e-9)
	require.InDelta(t, 0.78, snapshot.Rate("GBP"), 1e-9)
	require.InDelta(t, 16000.0, snapshot.Rate("IDR"), 1e-9)
	require.InDelta(t, 1.0, snapshot.Rate("BAD"), 1e-9)
	require.InDelta(t, 1.0, snapshot.Rate("NEG"), 1e-9)
	require.InDelta(t, 1.0, snapshot.Rate("MISSING"), 1e-9)
}

func TestRateRoundTripsThroughScan(t *testing.T) {
	snapshot := &CurrencyRate{Rates: datatypes.JSONMap{"EUR": 0.9}}

	encoded, err := json.Marshal(snapshot.Rates)
	require.NoError(t, err)

	// JSONMap.Scan decodes with UseNumber, which is what every row read
	// from the database goes through.
	var decoded datatypes.JSONMap
	require.NoError(t, decoded.Scan(encoded))

	reloaded := &CurrencyRate{Rates: decoded}
	require.InDelta(t, 0.9, reloaded.Rate("EUR"), 1e-9)
}
