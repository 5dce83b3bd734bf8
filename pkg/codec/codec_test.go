package codec_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/agubarev/aegis/pkg/codec"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	ID     uuid.UUID         `cbor:"id"`
	At     time.Time         `cbor:"at"`
	Counts map[string]uint64 `cbor:"counts"`
	Values []float64         `cbor:"values"`
}

func TestCBORDeterminism(t *testing.T) {
	a := assert.New(t)

	s := sample{
		ID:     uuid.New(),
		At:     time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
		Counts: map[string]uint64{"b": 2, "a": 1, "c": 3},
		Values: []float64{0.5, 1.25},
	}

	first, err := codec.Marshal(s)
	a.NoError(err)

	for i := 0; i < 10; i++ {
		again, err := codec.Marshal(s)
		a.NoError(err)
		a.True(bytes.Equal(first, again))
	}

	var decoded sample
	a.NoError(codec.Unmarshal(first, &decoded))
	a.Equal(s.ID, decoded.ID)
	a.True(s.At.Equal(decoded.At))
	a.Equal(s.Counts, decoded.Counts)
	a.Equal(s.Values, decoded.Values)
}

func TestZstd(t *testing.T) {
	a := assert.New(t)

	payload := bytes.Repeat([]byte("aegis baseline "), 1000)

	compressed, err := codec.Compress(payload)
	a.NoError(err)
	a.True(len(compressed) < len(payload))

	decompressed, err := codec.Decompress(compressed)
	a.NoError(err)
	a.Equal(payload, decompressed)

	_, err = codec.Decompress([]byte("definitely not zstd"))
	a.Error(err)
}
