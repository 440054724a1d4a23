package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.WithComponent("honeypot").
		WithSession("s1").
		WithClient("10.0.0.1").
		Info().Msg("message engaged")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "honeypot", entry["component"])
	assert.Equal(t, "s1", entry["session_id"])
	assert.Equal(t, "10.0.0.1", entry["client_addr"])
	assert.Equal(t, "message engaged", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.WithError(errors.New("boom")).Warn().Msg("shown")
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().WithComponent("x").Error().Msg("discarded")
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "debug",
		"WARNING": "warn",
		" error ": "error",
		"off":     "disabled",
		"bogus":   "info",
		"":        "info",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in).String(), "level %q", in)
	}
}

func TestSetGlobal(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	l := Nop()
	SetGlobal(l)
	assert.Same(t, l, Global())
}
