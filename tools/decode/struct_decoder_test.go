package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type locationPayload struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

func TestDecodeMapLocationPayload(t *testing.T) {
	// what json.Unmarshal into map[string]any produces: all numbers float64
	m := map[string]any{
		"lat":       -34.6037,
		"lng":       -58.3816,
		"timestamp": float64(1700000000),
	}

	out, err := DecodeMap[locationPayload](m)
	require.NoError(t, err)
	assert.Equal(t, -34.6037, out.Lat)
	assert.Equal(t, -58.3816, out.Lng)
	assert.Equal(t, int64(1700000000), out.Timestamp)
}

func TestDecodeMapWeakTyping(t *testing.T) {
	// some clients send numbers as strings
	m := map[string]any{
		"lat":       "-34.6037",
		"lng":       "-58.3816",
		"timestamp": "1700000000",
	}

	out, err := DecodeMap[locationPayload](m)
	require.NoError(t, err)
	assert.Equal(t, -34.6037, out.Lat)
	assert.Equal(t, int64(1700000000), out.Timestamp)
}

func TestDecodeMapStrictMode(t *testing.T) {
	m := map[string]any{"lat": "-34.6037", "lng": -58.3816, "timestamp": float64(1)}

	_, err := DecodeMap[locationPayload](m, Options{WeaklyTypedInput: false})
	assert.Error(t, err)
}

func TestDecodeMapNil(t *testing.T) {
	_, err := DecodeMap[locationPayload](nil)
	assert.Error(t, err)
}

func TestDecodeMapIgnoresExtraFields(t *testing.T) {
	m := map[string]any{
		"lat":       1.0,
		"lng":       2.0,
		"timestamp": float64(3),
		"accuracy":  5.0,
	}

	out, err := DecodeMap[locationPayload](m)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Lat)
}
