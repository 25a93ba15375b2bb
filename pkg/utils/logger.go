package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes pipeline activity to a rotating workspace log file and,
// when stderr is an interactive terminal, echoes process steps to the console.
type Logger struct {
	logger        *log.Logger
	echoConsole   bool
	jsonMode      bool
	correlationID string
}

var (
	globalLogger *Logger
	once         sync.Once
)

// GetLogger returns the singleton workspace logger. The log file lives under
// the state directory and rotates via lumberjack.
func GetLogger() *Logger {
	once.Do(func() {
		logFile := &lumberjack.Logger{
			Filename:   ".opencopilot/workspace.log",
			MaxSize:    15, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		globalLogger = &Logger{
			logger:      log.New(logFile, "", log.LstdFlags),
			echoConsole: term.IsTerminal(int(os.Stderr.Fd())),
		}
		if os.Getenv("OPENCOPILOT_JSON_LOGS") == "1" {
			globalLogger.jsonMode = true
		}
		if cid := os.Getenv("OPENCOPILOT_CORRELATION_ID"); cid != "" {
			globalLogger.correlationID = cid
		}
	})
	return globalLogger
}

// NewTestLogger returns a logger that discards console echo and writes to the
// standard log writer, for use from tests.
func NewTestLogger() *Logger {
	return &Logger{logger: log.New(os.Stderr, "", log.LstdFlags)}
}

// Close closes the underlying log file.
func (w *Logger) Close() error {
	if logFile, ok := w.logger.Writer().(*lumberjack.Logger); ok {
		return logFile.Close()
	}
	return nil
}

// LogProcessStep logs the current step in a process and echoes it when the
// session is interactive.
func (w *Logger) LogProcessStep(step string) {
	w.logger.Printf("Process Step: %s", step)
	if w.echoConsole {
		fmt.Fprintln(os.Stderr, step)
	}
}

// Log logs a general message only to the log file.
func (w *Logger) Log(message string) {
	if w.jsonMode {
		_ = json.NewEncoder(w.logger.Writer()).Encode(map[string]any{"level": "info", "msg": message, "cid": w.correlationID})
		return
	}
	w.logger.Print(message)
}

// Logf logs a formatted general message only to the log file.
func (w *Logger) Logf(format string, v ...interface{}) {
	if w.jsonMode {
		w.Log(fmt.Sprintf(format, v...))
		return
	}
	w.logger.Printf(format, v...)
}

func (w *Logger) LogError(err error) {
	if w.jsonMode {
		_ = json.NewEncoder(w.logger.Writer()).Encode(map[string]any{"level": "error", "error": err.Error(), "cid": w.correlationID})
		return
	}
	w.logger.Printf("Error: %s", err)
	if w.echoConsole {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}
