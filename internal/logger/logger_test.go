package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return slog.New(NewPrettyHandler(buf, &PrettyOptions{Level: level, NoColor: true}))
}

func TestDefaultAndDiscard(t *testing.T) {
	t.Parallel()
	for _, log := range []Logger{Default(), Discard()} {
		require.NotNil(t, log)
		log.Debug("debug message")
		log.With("a", 1).WithGroup("g").Warn("warn message")
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")
	log.With("primitive", "conv1").Warn("missing weights")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"primitive":"conv1"`)
	assert.Contains(t, out, `"level":"WARN"`)
}

func TestWithGroupJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	JSON(&buf, slog.LevelInfo).WithGroup("frontier").Info("stats", "index", 3)
	assert.Contains(t, buf.String(), `"frontier":{"index":3}`)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	assert.Contains(t, buf.String(), "roundtrip")

	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		" Warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatPretty, false},
		{"pretty", FormatPretty, false},
		{"JSON", FormatJSON, false},
		{" text", FormatText, false},
		{"xml", "", true},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	tests := map[Format]string{
		FormatJSON:   `"primitive":"conv1"`,
		FormatText:   "primitive=conv1",
		FormatPretty: "primitive=conv1",
	}
	for format, want := range tests {
		var buf bytes.Buffer
		log := Build(&buf, format, slog.LevelWarn)
		log.Info("hidden")
		log.Warn("missing dump files", "primitive", "conv1")

		out := buf.String()
		assert.NotContains(t, out, "hidden", format)
		assert.Contains(t, out, want, format)
	}
}

func TestBuildPrettyNoColorOnBuffer(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Build(&buf, FormatPretty, slog.LevelInfo).Info("scan", "files", 4)
	assert.NotContains(t, buf.String(), "\033[")
}

func TestPrettyLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &PrettyOptions{NoColor: true})
	r := slog.NewRecord(time.Date(2024, 3, 1, 9, 30, 5, 0, time.UTC), slog.LevelWarn, "batch mismatch", 0)
	r.AddAttrs(slog.String("frontier", "frontier0"), slog.Int("got", 3))
	require.NoError(t, h.Handle(context.Background(), r))

	assert.Equal(t, "09:30:05 WARN  batch mismatch frontier=frontier0 got=3\n", buf.String())
}

func TestPrettyZeroTimeOmitted(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &PrettyOptions{NoColor: true})
	require.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "done", 0)))
	assert.Equal(t, "INFO  done\n", buf.String())
}

func TestPrettyColors(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil)).Error("boom")
	assert.Contains(t, buf.String(), ansiPalette.err)
	assert.Contains(t, buf.String(), ansiPalette.reset)
}

func TestPrettyEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &PrettyOptions{Level: slog.LevelWarn})
	ctx := context.Background()
	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestPrettyGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &PrettyOptions{NoColor: true})

	assert.Same(t, h, h.WithGroup(""))
	assert.Same(t, h, h.WithAttrs(nil))

	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("run", "r1")}).WithGroup("a").WithGroup("b"))
	log.Info("nested", "key", "val", slog.Group("g", "x", 1))

	out := buf.String()
	assert.Contains(t, out, " run=r1")
	assert.Contains(t, out, " a.b.key=val")
	assert.Contains(t, out, " a.b.g.x=1")
}

func TestPrettyBoundAttrsDoNotLeak(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := plain(&buf, slog.LevelInfo)
	_ = base.With("primitive", "conv1")
	base.Info("plain")
	assert.NotContains(t, buf.String(), "conv1")
}

func TestPrettyValues(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	plain(&buf, slog.LevelInfo).Info("values",
		"msg", "hello world",
		"simple", "conv1",
		"empty", "",
		"factor", float32(0.1),
		"ratio", 1.0/3,
		"took", 1234567*time.Microsecond,
		"err", errors.New("no such file"),
		"dims", []int{2, 3},
	)

	out := buf.String()
	assert.Contains(t, out, `msg="hello world"`)
	assert.Contains(t, out, "simple=conv1")
	assert.Contains(t, out, "empty= ")
	assert.Contains(t, out, "factor=0.1 ")
	assert.Contains(t, out, "ratio=0.333333")
	assert.Contains(t, out, "took=1.235s")
	assert.Contains(t, out, `err="no such file"`)
	assert.Contains(t, out, `dims="[2 3]"`)
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"simple":           false,
		"":                 false,
		"no-special-chars": false,
		"has space":        true,
		"has\ttab":         true,
		"has\nnewline":     true,
		`has"quote`:        true,
		"a=b":              true,
	}
	for in, want := range tests {
		assert.Equal(t, want, needsQuoting(in), "%q", in)
	}
}
