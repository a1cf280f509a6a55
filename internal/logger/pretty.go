package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

type palette struct {
	reset, dim, attr, bold string
	debug, info, warn, err string
}

var (
	ansiPalette = palette{
		reset: "\033[0m",
		dim:   "\033[90m",
		attr:  "\033[36m",
		bold:  "\033[1m",
		debug: "\033[90m",
		info:  "\033[34m",
		warn:  "\033[33m",
		err:   "\033[31m",
	}
	plainPalette palette
)

func (p palette) level(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return p.err
	case l >= slog.LevelWarn:
		return p.warn
	case l >= slog.LevelInfo:
		return p.info
	default:
		return p.debug
	}
}

// PrettyOptions configures a PrettyHandler.
type PrettyOptions struct {
	Level slog.Leveler
	// NoColor disables ANSI escapes, for redirected stderr.
	NoColor bool
	// TimeFormat defaults to time.TimeOnly.
	TimeFormat string
}

// PrettyHandler writes one human-readable line per record:
//
//	15:04:05 WARN  missing dump files primitive=conv1 group=2
type PrettyHandler struct {
	level  slog.Leveler
	colors palette
	tfmt   string
	w      io.Writer
	mu     *sync.Mutex
	prefix string // dotted group path applied to record attrs
	bound  []byte // pre-rendered WithAttrs output
}

// NewPrettyHandler creates a PrettyHandler. A nil opts logs at info with colors.
func NewPrettyHandler(w io.Writer, opts *PrettyOptions) *PrettyHandler {
	var o PrettyOptions
	if opts != nil {
		o = *opts
	}
	h := &PrettyHandler{
		level:  o.Level,
		colors: ansiPalette,
		tfmt:   o.TimeFormat,
		w:      w,
		mu:     &sync.Mutex{},
	}
	if h.level == nil {
		h.level = slog.LevelInfo
	}
	if o.NoColor {
		h.colors = plainPalette
	}
	if h.tfmt == "" {
		h.tfmt = time.TimeOnly
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	c := h.colors
	buf := make([]byte, 0, 256)

	if !r.Time.IsZero() {
		buf = append(buf, c.dim...)
		buf = r.Time.AppendFormat(buf, h.tfmt)
		buf = append(buf, c.reset...)
		buf = append(buf, ' ')
	}

	buf = append(buf, c.level(r.Level)...)
	buf = append(buf, c.bold...)
	buf = fmt.Appendf(buf, "%-5s", r.Level.String())
	buf = append(buf, c.reset...)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	if len(h.bound) > 0 || r.NumAttrs() > 0 {
		buf = append(buf, c.attr...)
		buf = append(buf, h.bound...)
		r.Attrs(func(a slog.Attr) bool {
			buf = appendAttr(buf, h.prefix, a)
			return true
		})
		buf = append(buf, c.reset...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.bound = append([]byte(nil), h.bound...)
	for _, a := range attrs {
		h2.bound = appendAttr(h2.bound, h.prefix, a)
	}
	return &h2
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// appendAttr writes " key=value", flattening groups into dotted keys.
func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub += a.Key + "."
		}
		for _, g := range a.Value.Group() {
			buf = appendAttr(buf, sub, g)
		}
		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')

	v := a.Value
	switch v.Kind() {
	case slog.KindString:
		return appendString(buf, v.String())
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'g', 6, 64)
	case slog.KindDuration:
		return append(buf, v.Duration().Round(time.Millisecond).String()...)
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return appendString(buf, x.Error())
		default:
			return appendString(buf, fmt.Sprint(x))
		}
	default:
		return append(buf, v.String()...)
	}
}

func appendString(buf []byte, s string) []byte {
	if needsQuoting(s) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func needsQuoting(s string) bool {
	for _, c := range s {
		if c <= ' ' || c == '"' || c == '=' || c == 0x7f {
			return true
		}
	}
	return false
}
