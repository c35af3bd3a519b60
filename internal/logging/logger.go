package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"mockingbird/internal/config"
)

// Options controls how the process logger is built.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
}

// New builds the root slog.Logger the daemon and CLI hang everything off.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))

	outs := opts.OutputPaths
	if len(outs) == 0 {
		outs = []string{"stdout"}
	}
	errs := opts.ErrorOutputPaths
	if len(errs) == 0 {
		errs = []string{"stderr"}
	}
	sink, err := openWriters(outs, errs)
	if err != nil {
		return nil, err
	}

	// Source locations only pay for themselves when someone is debugging.
	addSource := levelVar.Level() <= slog.LevelDebug

	format, err := resolveFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if format == "json" {
		return slog.New(newJSONHandler(sink, levelVar, addSource)), nil
	}
	return slog.New(newPrettyHandler(sink, levelVar, addSource)), nil
}

// NewFromConfig creates a logger using application config defaults. A log
// file under cfg.Paths.LogDir is added alongside stdout when the directory is
// configured.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "auto"})
	}

	sinks := []string{"stdout"}
	errSinks := []string{"stderr"}
	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare log directory: %w", err)
		}
		logPath := filepath.Join(cfg.Paths.LogDir, "mockingbird.log")
		sinks = append(sinks, logPath)
		errSinks = append(errSinks, logPath)
	}

	return New(Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      sinks,
		ErrorOutputPaths: errSinks,
	})
}

// resolveFormat maps the configured format to a concrete handler choice.
// "auto" (and the empty string) picks console on a terminal and json when
// output is redirected, so journald and files get parseable lines.
func resolveFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "auto":
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return "console", nil
		}
		return "json", nil
	case "console":
		return "console", nil
	case "json":
		return "json", nil
	default:
		return "", fmt.Errorf("log format: unsupported value %q", format)
	}
}

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// parseLevel is forgiving: unknown names fall back to info rather than
// failing startup over a typo in the config file.
func parseLevel(level string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// openWriters opens each distinct sink once and fans every record out to all
// of them. Error paths share the writer list; slog has no split-stream
// concept and duplicating failures across files helps nobody.
func openWriters(outputPaths, errorPaths []string) (io.Writer, error) {
	seen := make(map[string]bool)
	var writers []io.Writer
	for _, group := range [][]string{outputPaths, errorPaths} {
		for _, path := range group {
			name := strings.TrimSpace(path)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			w, err := openSink(name)
			if err != nil {
				return nil, err
			}
			writers = append(writers, w)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openSink(name string) (io.Writer, error) {
	switch name {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if dir := filepath.Dir(name); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory for %s: %w", name, err)
		}
	}
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", name, err)
	}
	return file, nil
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: renameCoreAttrs,
	})
}

// renameCoreAttrs aligns the stdlib JSON keys with the ts/level/msg
// vocabulary the log shippers expect and trims source locations to
// file:line.
func renameCoreAttrs(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "ts"
		if attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
		}
	case slog.LevelKey:
		attr.Key = "level"
		attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "msg"
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return attr
}

// prettyHandler renders one-line console records: timestamp, level, an
// optional component prefix folded out of the attributes, the message, then
// key=value pairs with group keys joined by dots. Attrs bound via WithAttrs
// are flattened once at bind time, so Handle only flattens the record's own
// attributes.
type prettyHandler struct {
	mu        sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	addSource bool
	attrs     []slog.Attr
	groups    []string
}

func newPrettyHandler(out io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{out: out, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	flat := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	flat = append(flat, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		flat = appendFlattened(flat, h.groups, attr)
		return true
	})

	// The component attribute becomes a message prefix instead of a
	// key=value pair; the first one wins.
	component := ""
	rest := flat[:0]
	for _, attr := range flat {
		if attr.Key == FieldComponent {
			if component == "" {
				component = attrString(attr.Value)
			}
			continue
		}
		rest = append(rest, attr)
	}

	var buf bytes.Buffer
	buf.Grow(128 + len(rest)*24)
	h.writeHeader(&buf, record, component)
	for _, attr := range rest {
		if attr.Key == "" {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(attr.Key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(attr.Value))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) writeHeader(buf *bytes.Buffer, record slog.Record, component string) {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	buf.WriteByte(' ')
	if component != "" {
		buf.WriteString(component)
		buf.WriteString(": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}
	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, attr := range attrs {
		clone.attrs = appendFlattened(clone.attrs, clone.groups, attr)
	}
	return clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.groups = append(clone.groups, name)
	return clone
}

func (h *prettyHandler) clone() *prettyHandler {
	return &prettyHandler{
		out:       h.out,
		level:     h.level,
		addSource: h.addSource,
		attrs:     append([]slog.Attr(nil), h.attrs...),
		groups:    append([]string(nil), h.groups...),
	}
}

// appendFlattened resolves attr and appends it to dst with its group path
// joined into the key. Group attrs recurse; empty attrs vanish, matching the
// stdlib handlers.
func appendFlattened(dst []slog.Attr, prefix []string, attr slog.Attr) []slog.Attr {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append(make([]string, 0, len(prefix)+1), prefix...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			dst = appendFlattened(dst, next, member)
		}
		return dst
	}
	return append(dst, slog.Attr{Key: dottedKey(prefix, attr.Key), Value: attr.Value})
}

func dottedKey(prefix []string, key string) string {
	if len(prefix) == 0 {
		return key
	}
	joined := strings.Join(prefix, ".")
	if key == "" {
		return joined
	}
	return joined + "." + key
}

// attrString renders a value for the component prefix, where quoting would
// only add noise.
func attrString(val slog.Value) string {
	val = val.Resolve()
	switch val.Kind() {
	case slog.KindString:
		return val.String()
	case slog.KindAny:
		if err, ok := val.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(val.Any())
	default:
		return formatValue(val)
	}
}

func formatValue(val slog.Value) string {
	val = val.Resolve()
	switch val.Kind() {
	case slog.KindString:
		return maybeQuote(val.String())
	case slog.KindBool:
		return strconv.FormatBool(val.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(val.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(val.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(val.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return val.Duration().String()
	case slog.KindTime:
		return val.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := val.Any().(error); ok {
			return maybeQuote(err.Error())
		}
		return maybeQuote(fmt.Sprint(val.Any()))
	default:
		return maybeQuote(val.String())
	}
}

func maybeQuote(s string) string {
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
}

func levelLabel(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	}
	return "ERROR"
}
