package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// palette holds the ANSI codes for one theme. The zero value prints no
// escape codes at all.
type palette struct {
	reset    string
	bold     string
	fg       string
	time     string
	accent   string
	id       string
	number   string
	symbol   string
	warn     string
	warnBg   string
	err      string
	errBg    string
	blocked  string
	cheap    string
	expensiv string
}

// Gruvbox Dark (warm, muted)
var gruvbox = palette{
	reset:    colorReset,
	bold:     colorBold,
	fg:       "\x1b[38;5;223m",
	time:     "\x1b[38;5;108m",
	accent:   "\x1b[38;5;208m",
	id:       "\x1b[38;5;109m",
	number:   "\x1b[38;5;175m",
	symbol:   "\x1b[38;5;142m",
	warn:     "\x1b[38;5;214m",
	warnBg:   "\x1b[48;5;58m",
	err:      "\x1b[38;5;167m",
	errBg:    "\x1b[48;5;88m",
	blocked:  "\x1b[38;5;167m",
	cheap:    "\x1b[38;5;142m",
	expensiv: "\x1b[38;5;214m",
}

// Everforest Dark (natural greens)
var everforest = palette{
	reset:    colorReset,
	bold:     colorBold,
	fg:       "\x1b[38;5;223m",
	time:     "\x1b[38;5;107m",
	accent:   "\x1b[38;5;208m",
	id:       "\x1b[38;5;109m",
	number:   "\x1b[38;5;108m",
	symbol:   "\x1b[38;5;108m",
	warn:     "\x1b[38;5;179m",
	warnBg:   "\x1b[48;5;58m",
	err:      "\x1b[38;5;167m",
	errBg:    "\x1b[48;5;52m",
	blocked:  "\x1b[38;5;167m",
	cheap:    "\x1b[38;5;108m",
	expensiv: "\x1b[38;5;179m",
}

var currentTheme = "everforest"

// SetTheme configures the color scheme for log output (everforest, gruvbox,
// plain)
func SetTheme(theme string) {
	if theme == "everforest" || theme == "gruvbox" || theme == "plain" {
		currentTheme = theme
	}
}

func colors() palette {
	switch currentTheme {
	case "gruvbox":
		return gruvbox
	case "plain":
		return palette{}
	}
	return everforest
}

// minimalEncoder implements a calm, compact console encoder.
// Format: "13:04:35  p.coordinator  ꩜  Launching job  job_id=backup tier=3"
//
// Fields attached with With() land in the embedded map encoder, so child
// loggers carry them onto every line.
type minimalEncoder struct {
	*zapcore.MapObjectEncoder
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder()}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return &minimalEncoder{MapObjectEncoder: clone}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	c := colors()
	final := buffer.NewPool().Get()

	final.AppendString(c.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(c.reset)

	if lvl := levelColorString(ent.Level); lvl != "" {
		final.AppendString("  ")
		final.AppendString(lvl)
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(c.accent)
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(c.reset)
	}

	values, keys := enc.fieldValues(fields)

	if symbol, ok := values[FieldSymbol]; ok {
		final.AppendString("  ")
		final.AppendString(c.symbol)
		final.AppendString(symbol)
		final.AppendString(c.reset)
	}

	final.AppendString("  ")
	final.AppendString(c.fg)
	final.AppendString(ent.Message)
	final.AppendString(c.reset)

	if rendered := renderFields(keys, values); rendered != "" {
		final.AppendString("  ")
		final.AppendString(rendered)
	}

	final.AppendString("\n")
	return final, nil
}

// levelColorString returns bold + colored + background for WARN/ERROR and a
// plain marker for DEBUG; INFO is implicit.
func levelColorString(level zapcore.Level) string {
	c := colors()
	switch level {
	case zapcore.InfoLevel:
		return ""
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.WarnLevel:
		return c.bold + c.warnBg + c.warn + "WARN" + c.reset
	case zapcore.ErrorLevel:
		return c.bold + c.errBg + c.err + "ERROR" + c.reset
	default:
		return c.bold + c.errBg + c.err + level.CapitalString() + c.reset
	}
}

// abbreviateName shortens component names: pulse.coordinator -> p.coordinator
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// fieldValues renders context and entry fields to strings through zap's own
// map encoder, so no field type is ever dropped. Context keys come first in
// sorted order, then entry fields in call order.
func (enc *minimalEncoder) fieldValues(fields []zapcore.Field) (map[string]string, []string) {
	m := zapcore.NewMapObjectEncoder()
	var keys []string
	seen := make(map[string]bool)

	contextKeys := make([]string, 0, len(enc.Fields))
	for k, v := range enc.Fields {
		m.Fields[k] = v
		contextKeys = append(contextKeys, k)
	}
	sort.Strings(contextKeys)
	for _, k := range contextKeys {
		seen[k] = true
		keys = append(keys, k)
	}

	for _, f := range fields {
		if f.Type == zapcore.SkipType {
			continue
		}
		f.AddTo(m)
		if !seen[f.Key] {
			seen[f.Key] = true
			keys = append(keys, f.Key)
		}
	}

	out := make(map[string]string, len(m.Fields))
	for k, v := range m.Fields {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out, keys
}

// renderFields prints key=value pairs with colour hints for ids, tiers and
// durations. The symbol field is rendered separately.
func renderFields(keys []string, values map[string]string) string {
	c := colors()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := values[k]
		if !ok || k == FieldSymbol {
			continue
		}
		color := c.fg
		switch k {
		case FieldJobID, FieldRunID, FieldGroup:
			color = c.id
		case FieldDurationMS, FieldCount, FieldPrice:
			color = c.number
		case FieldTier:
			color = tierColor(v)
		case FieldError:
			color = c.err
		}
		parts = append(parts, k+"="+color+v+c.reset)
	}
	return strings.Join(parts, " ")
}

func tierColor(v string) string {
	c := colors()
	switch {
	case v == "99":
		return c.blocked
	case len(v) == 1:
		return c.cheap
	default:
		return c.expensiv
	}
}
