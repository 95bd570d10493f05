package report

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// Reporter is responsible for reporting errors, warnings, and progress
// messages to the user during a build.  The reporter respects the set log
// level and is synchronized.
type Reporter struct {
	// The mutex used to synchonize different report calls.
	m *sync.Mutex

	// The selected log level of the reporter.  This must be one of the
	// enumerated log levels below.
	logLevel int

	// The number of non-fatal errors reported so far.
	errorCount int

	// The time the reporter was initialized: used for the closing message.
	startTime time.Time

	// exit terminates the process.  It is only ever replaced by tests.
	exit func(code int)
}

// Enumeration of the different possible log levels.
const (
	LogLevelSilent  = iota // Displays no output.
	LogLevelError          // Displays only errors to the user.
	LogLevelWarn           // Displays only warnings and errors to the user.
	LogLevelVerbose        // Displays all build messages to the user (default).
)

// LogLevelNames maps the command line names of the log levels to their values.
var LogLevelNames = map[string]int{
	"silent":  LogLevelSilent,
	"error":   LogLevelError,
	"warn":    LogLevelWarn,
	"verbose": LogLevelVerbose,
}

// rep is the global reporter instance.
var rep = newReporter(LogLevelVerbose)

func newReporter(logLevel int) *Reporter {
	return &Reporter{
		m:         &sync.Mutex{},
		logLevel:  logLevel,
		startTime: time.Now(),
		exit:      os.Exit,
	}
}

// InitReporter (re)initializes the global reporter to the given log level.
func InitReporter(logLevel int) {
	exit := rep.exit
	rep = newReporter(logLevel)
	rep.exit = exit

	if logLevel == LogLevelSilent {
		pterm.DisableOutput()
	} else {
		pterm.EnableOutput()
	}
}

// SetOutput redirects all reporter output to w.
func SetOutput(w io.Writer) {
	pterm.SetDefaultOutput(w)
}

// SetExitFunc replaces the function used to terminate the process and returns
// the previous one.
func SetExitFunc(f func(code int)) func(code int) {
	prev := rep.exit
	rep.exit = f
	return prev
}

// AnyErrors returns whether or not any non-fatal errors were reported.
func AnyErrors() bool {
	rep.m.Lock()
	defer rep.m.Unlock()

	return rep.errorCount > 0
}
