package debug

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (permission outcome, captured photo)
	LevelLive    = 2 // Live info (state transitions, capture requests)
	LevelVerbose = 3 // Verbose (configuration, collaborator details)
	LevelTrace   = 4 // Trace (GPIO, queue, very low level)
)

var (
	level  int
	logger *logrus.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (permission outcome, captured photo)
// 2 = live info (state transitions, capture requests)
// 3 = verbose (configuration, collaborator details)
// 4 = trace (GPIO, queue, very low level)
func Init(debugLevel int) {
	level = debugLevel
	if level > LevelOff {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		// Gating happens on our own levels; logrus only formats.
		logger.SetLevel(logrus.TraceLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000000",
		})
	}
}

// SetOutput redirects log output (e.g. to also feed the web status stream).
func SetOutput(w io.Writer) {
	if logger != nil {
		logger.SetOutput(w)
	}
}

// Logger returns the underlying logger, or nil when output is off.
func Logger() *logrus.Logger {
	return logger
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Info("═══════════════════════════════════════")
		logger.Infof("  %s", title)
		logger.Info("═══════════════════════════════════════")
	}
}

// Permission prints the outcome of a camera permission check (level 1).
func Permission(capability, outcome string) {
	if level >= LevelInfo && logger != nil {
		logger.WithField("capability", capability).Infof("Permission %s", outcome)
	}
}

// Captured prints a successful capture (level 1).
func Captured(ref string) {
	if level >= LevelInfo && logger != nil {
		logger.WithField("ref", ref).Info("Image captured")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Infof(format, args...)
	}
}

// Transition prints a view state change (level 2).
func Transition(from, to string) {
	if level >= LevelLive && logger != nil {
		logger.WithFields(logrus.Fields{"from": from, "to": to}).Info("View transition")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf(format, args...)
	}
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Debugf("  %s", name)
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf("Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof("  %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Tracef(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.WithFields(logrus.Fields{"pin": pin, "value": value}).Tracef("GPIO %s", operation)
	}
}

// --- General functions ---

// Errorf prints a formatted error with its cause (level 1+).
func Errorf(err error, format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.WithError(err).Errorf(format, args...)
	}
}
