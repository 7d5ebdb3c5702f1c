package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestJSONLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentStats, Output: &buf})

	l.Info("computed", FieldUserID, "u1")
	l.Debug("hidden")
	l.WithComponent(ComponentCache).Warn("evicted")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, ComponentStats, lines[0][FieldComponent])
	assert.Equal(t, "u1", lines[0][FieldUserID])
	assert.Equal(t, ComponentCache, lines[1][FieldComponent])
}

func TestContextCarriesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf})

	ctx := NewContext(context.Background(), base.With(FieldRequestID, "req-1"))
	FromContext(ctx).InfoContext(ctx, "inside")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0][FieldRequestID])
}

func TestFromContextFallsBack(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.Equal(t, "unknown", l.Component())
}

func TestStructuredLoggerHTTPEndLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf}))
	r := httptest.NewRequest(http.MethodGet, "/api/stats", nil)

	sl.LogHTTPEnd(context.Background(), r, 200, 3, "1.2.3.4")
	sl.LogHTTPEnd(context.Background(), r, 404, 3, "1.2.3.4")
	sl.LogHTTPEnd(context.Background(), r, 503, 3, "1.2.3.4")
	sl.LogError(context.Background(), "boom", errors.New("db down"), ComponentStorage, OpRead, nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "ERROR", lines[2]["level"])
	assert.Equal(t, ComponentHTTP, lines[2][FieldComponent])
	assert.Equal(t, "db down", lines[3][FieldError])
	assert.Equal(t, ComponentStorage, lines[3][FieldComponent])
}
