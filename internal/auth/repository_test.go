package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailedLogonsCodec(t *testing.T) {
	logons := []time.Time{
		time.UnixMilli(54321012341).UTC(),
		time.UnixMilli(54321012345).UTC(),
	}

	encoded, err := encodeFailedLogons(logons)
	require.NoError(t, err)
	assert.JSONEq(t, `[54321012341,54321012345]`, encoded.(string),
		"history is stored as epoch milliseconds")

	decoded, err := decodeFailedLogons([]byte(encoded.(string)))
	require.NoError(t, err)
	assert.Equal(t, logons, decoded)
}

func TestFailedLogonsCodec_Empty(t *testing.T) {
	encoded, err := encodeFailedLogons(nil)
	require.NoError(t, err)
	assert.Nil(t, encoded, "an empty history is stored as NULL")

	decoded, err := decodeFailedLogons(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeFailedLogons_Malformed(t *testing.T) {
	_, err := decodeFailedLogons([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}
