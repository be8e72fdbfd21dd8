package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(t *testing.T) (*LogrusLogger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l := NewLogrusLogger()
	l.SetOutput(buf)
	return l, buf
}

func TestLogrusLogger_JSONFields(t *testing.T) {
	l, buf := newBufferedLogger(t)

	l.WithField("queue", "mailflow-dlq-dev").WithError(errors.New("lease expired")).Warn("Delete failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "mailflow-dlq-dev", entry["queue"])
	assert.Equal(t, "lease expired", entry["error"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "Delete failed", entry["msg"])
}

func TestLogrusLogger_SetLevel(t *testing.T) {
	l, buf := newBufferedLogger(t)

	l.SetLevel("error")
	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel("not-a-level")
	l.Info("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLogrusLogger_TextFormat(t *testing.T) {
	l, buf := newBufferedLogger(t)

	l.SetFormat("text")
	l.WithFields(map[string]interface{}{"component": "peeker"}).Info("hello")

	assert.Contains(t, buf.String(), "component=peeker")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, DefaultLogger, FromContext(context.Background()))

	l, _ := newBufferedLogger(t)
	scoped := l.WithField("request_id", "abc")
	ctx := NewContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx))
}
