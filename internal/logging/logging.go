package logging

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Error(msg string, kv ...any)
	Fatal(msg string, kv ...any)
}

type entry struct {
	Time   time.Time      `json:"time"`
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

type zapLogger struct {
	s *zap.SugaredLogger
}

var (
	bufMu   sync.RWMutex
	recent  = make([]*entry, 1000)
	nextIdx = 0
	// global log level, runtime-switchable
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	// live subscribers for streaming
	subMu       sync.RWMutex
	subscribers = map[chan *entry]struct{}{}
	// optional persistence hook
	persistMu sync.RWMutex
	persistFn func(any) error
)

// New creates a logger; honors env vars LOG_LEVEL (debug|info|error), LOG_JSON (true|false).
func New(env string) Logger {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" { lvl = "info" }
	SetLevel(lvl)
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	var enc zapcore.Encoder
	if v := os.Getenv("LOG_JSON"); v == "false" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), atomicLevel)
	return &zapLogger{s: zap.New(core).Sugar()}
}

// Allow external packages to register a persistence callback
func SetPersist(fn func(any) error) {
	persistMu.Lock(); defer persistMu.Unlock()
	persistFn = fn
}

// Level control
func SetLevel(lvl string) {
	switch lvl {
	case "debug":
		atomicLevel.SetLevel(zapcore.DebugLevel)
	case "error":
		atomicLevel.SetLevel(zapcore.ErrorLevel)
	case "fatal":
		atomicLevel.SetLevel(zapcore.FatalLevel)
	default:
		atomicLevel.SetLevel(zapcore.InfoLevel)
	}
}

func GetLevel() string {
	switch atomicLevel.Level() {
	case zapcore.DebugLevel:
		return "debug"
	case zapcore.ErrorLevel:
		return "error"
	case zapcore.FatalLevel:
		return "fatal"
	default:
		return "info"
	}
}

func shouldLog(lvl zapcore.Level) bool { return atomicLevel.Enabled(lvl) }

func broadcast(e *entry) {
	subMu.RLock(); defer subMu.RUnlock()
	for ch := range subscribers {
		select { case ch <- e: default: /* drop if slow */ }
	}
}

func appendBuf(e *entry) {
	bufMu.Lock()
	recent[nextIdx] = e
	nextIdx = (nextIdx + 1) % len(recent)
	bufMu.Unlock()
	broadcast(e)
	// persist asynchronously if configured
	persistMu.RLock(); fn := persistFn; persistMu.RUnlock()
	if fn != nil { go fn(e) }
}

func fieldsFromKV(kv []any) map[string]any {
	if len(kv) == 0 { return nil }
	m := map[string]any{}
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) { break }
		k, ok := kv[i].(string)
		if !ok { continue }
		m[k] = kv[i+1]
	}
	return m
}

func (l *zapLogger) write(level zapcore.Level, name, msg string, kv ...any) {
	if !shouldLog(level) { return }
	appendBuf(&entry{Time: time.Now(), Level: name, Msg: msg, Fields: fieldsFromKV(kv)})
	switch level {
	case zapcore.DebugLevel:
		l.s.Debugw(msg, kv...)
	case zapcore.ErrorLevel:
		l.s.Errorw(msg, kv...)
	case zapcore.FatalLevel:
		l.s.Fatalw(msg, kv...)
	default:
		l.s.Infow(msg, kv...)
	}
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.write(zapcore.DebugLevel, "debug", msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.write(zapcore.InfoLevel, "info", msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.write(zapcore.ErrorLevel, "error", msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...any) { l.write(zapcore.FatalLevel, "fatal", msg, kv...) }

// Recent returns up to n most recent log entries (newest-first).
func Recent(n int) []*entry {
	bufMu.RLock(); defer bufMu.RUnlock()
	if n <= 0 || n > len(recent) { n = len(recent) }
	out := make([]*entry, 0, n)
	i := (nextIdx - 1 + len(recent)) % len(recent)
	for c := 0; c < len(recent) && len(out) < n; c++ {
		if recent[i] != nil { out = append(out, recent[i]) }
		i = (i - 1 + len(recent)) % len(recent)
	}
	return out
}

// Subscribe returns a channel that will receive new log entries. Call the returned cancel func to unsubscribe.
func Subscribe() (<-chan *entry, func()) {
	ch := make(chan *entry, 100)
	subMu.Lock(); subscribers[ch] = struct{}{}; subMu.Unlock()
	cancel := func(){ subMu.Lock(); delete(subscribers, ch); close(ch); subMu.Unlock() }
	return ch, cancel
}
