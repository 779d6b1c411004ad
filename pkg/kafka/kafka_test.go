package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	messages, err := Encode([]Event{
		{Key: "search", Value: sample{Type: "search", Count: 3}},
		{Key: "index_run", Value: sample{Type: "index_run", Count: 7}},
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, []byte("index_run"), messages[1].Key)

	got, err := DecodeJSON[sample](messages[1].Value)
	require.NoError(t, err)
	assert.Equal(t, sample{Type: "index_run", Count: 7}, got)
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := Encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.ErrorContains(t, err, `"bad"`)
}

func TestDecodeJSONError(t *testing.T) {
	_, err := DecodeJSON[sample]([]byte("{"))
	assert.Error(t, err)
}
