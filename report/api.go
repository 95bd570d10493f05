package report

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// -----------------------------------------------------------------------------
// NOTE: All report functions will only display if the appropriate log level is
// set.  Most report functions will simply fail silently if below their
// appropriate log level.

// ReportWarning reports a warning.  Warnings never stop the build.
func ReportWarning(message string, args ...interface{}) {
	if rep.logLevel >= LogLevelWarn {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayWarning(fmt.Sprintf(message, args...))
	}
}

// ReportInfo displays a tagged informational message.
func ReportInfo(tag, message string) {
	if rep.logLevel > LogLevelSilent {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayInfo(tag, message)
	}
}

// -----------------------------------------------------------------------------
// Below are all the "aesthetic" reporting functions that will only run if the
// log level is verbose.

// ReportBuildHeader displays the target and mode of the build.
func ReportBuildHeader(version, triple string, release bool) {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		mode := "debug"
		if release {
			mode = "release"
		}

		displayInfo("Vale", fmt.Sprintf("v%s (%s, %s)", version, triple, mode))
	}
}

// ReportPhase reports the beginning of a pipeline phase.
func ReportPhase(name string) {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayPhase(name)
	}
}

// ReportOutputWritten reports that an output file was written.
func ReportOutputWritten(path string, size int64) {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		displayPhase(fmt.Sprintf("wrote %s (%s)", path, humanize.Bytes(uint64(size))))
	}
}

// ReportBuildFinished displays the concluding message of a build.
func ReportBuildFinished() {
	if rep.logLevel == LogLevelVerbose {
		rep.m.Lock()
		defer rep.m.Unlock()

		elapsed := time.Since(rep.startTime).Round(time.Millisecond)
		displayBuildFinished(rep.errorCount == 0, elapsed.String())
	}
}
