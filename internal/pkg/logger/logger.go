package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return l
		}
	}
	return INFO
}

// Logger emits one JSON object per line. Email addresses in field values are
// redacted unless redaction is switched off.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	redactPII bool
	now       func() time.Time
}

// New returns a logger writing to out.
func New(out io.Writer, level Level) *Logger {
	return &Logger{out: out, level: level, redactPII: true, now: time.Now}
}

var defaultLogger = New(os.Stderr, INFO)

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) {
	defaultLogger.mu.Lock()
	defaultLogger.level = l
	defaultLogger.mu.Unlock()
}

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redactPII = r
	defaultLogger.mu.Unlock()
}

func Debug(msg string, fields ...any) { defaultLogger.Log(DEBUG, msg, fields...) }
func Info(msg string, fields ...any)  { defaultLogger.Log(INFO, msg, fields...) }
func Warn(msg string, fields ...any)  { defaultLogger.Log(WARN, msg, fields...) }
func Error(msg string, fields ...any) { defaultLogger.Log(ERROR, msg, fields...) }

// Log writes msg with key-value fields. A trailing key without a value is
// dropped.
func (l *Logger) Log(level Level, msg string, fields ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	entry := map[string]any{
		"time":  l.now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		var val any = fields[i+1]
		switch v := val.(type) {
		case int, int64, float64, bool:
		case error:
			val = l.redact(key, v.Error())
		default:
			val = l.redact(key, fmt.Sprintf("%v", v))
		}
		entry[key] = val
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	fmt.Fprintln(l.out, string(data))
}

func (l *Logger) redact(key, val string) string {
	if !l.redactPII {
		return val
	}
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "email") || strings.Contains(key, "recipient_address"):
		return RedactEmail(val)
	case strings.Contains(key, "phone"):
		return RedactPhone(val)
	}
	return RedactText(val)
}
