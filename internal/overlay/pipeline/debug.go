package pipeline

import (
	"fmt"
	"io"
	"log"
)

// LogLevel selects how much of the runner's output is written.
type LogLevel int

const (
	LogQuiet LogLevel = iota
	LogOps            // start/stop, detector errors
	LogDiag           // plus invalid detections dropped per frame
	LogTrace          // plus one line per frame, throttles and drops
)

// ParseLogLevel maps a flag value to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "quiet", "off":
		return LogQuiet, nil
	case "ops", "":
		return LogOps, nil
	case "diag":
		return LogDiag, nil
	case "trace":
		return LogTrace, nil
	}
	return LogQuiet, fmt.Errorf("unknown log level %q (want quiet, ops, diag or trace)", s)
}

var streams [LogTrace + 1]*log.Logger

// SetLogOutput writes every stream up to level to w and mutes the rest.
// A nil w mutes everything.
func SetLogOutput(w io.Writer, level LogLevel) {
	for l := LogOps; l <= LogTrace; l++ {
		streams[l] = nil
		if w != nil && l <= level {
			streams[l] = log.New(w, "[pipeline] ", log.LstdFlags|log.Lmicroseconds)
		}
	}
}

func logAt(level LogLevel, format string, args ...interface{}) {
	if lg := streams[level]; lg != nil {
		lg.Printf(format, args...)
	}
}

func opsf(format string, args ...interface{})   { logAt(LogOps, format, args...) }
func diagf(format string, args ...interface{})  { logAt(LogDiag, format, args...) }
func tracef(format string, args ...interface{}) { logAt(LogTrace, format, args...) }
