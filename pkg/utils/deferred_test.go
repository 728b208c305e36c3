package utils

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredWriter_FlushInOrder(t *testing.T) {
	var d DeferredWriter

	buf := []byte("first\n")
	_, _ = d.Write(buf)
	buf[0] = 'X' // the writer keeps its own copy
	_, _ = d.Write([]byte("second\n"))
	assert.Equal(t, 2, d.Len())

	var out bytes.Buffer
	require.NoError(t, d.Flush(&out))
	assert.Equal(t, "first\nsecond\n", out.String())
	assert.Equal(t, 0, d.Len())
}

func TestDeferredWriter_ZerologEvents(t *testing.T) {
	var d DeferredWriter
	log := zerolog.New(&d)

	log.Info().Str("key", "alice:bob").Msg("message appended")
	log.Warn().Msg("notification dispatch failed")

	var out bytes.Buffer
	require.NoError(t, d.Flush(zerolog.ConsoleWriter{Out: &out, NoColor: true}))
	assert.Contains(t, out.String(), "message appended")
	assert.Contains(t, out.String(), "key=alice:bob")
	assert.Contains(t, out.String(), "notification dispatch failed")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestDeferredWriter_FlushError(t *testing.T) {
	var d DeferredWriter
	_, _ = d.Write([]byte("x"))
	assert.Error(t, d.Flush(failingWriter{}))
}
