package report

import (
	"fmt"

	"github.com/m910q/Vale/common"
)

// InternalError is raised when a structural invariant of the backend is
// violated: a phase run out of order, a layout mismatch, a lookup of a handle
// that was never created.  It indicates a bug in this stage or in whatever
// produced its input, never a user error.
type InternalError struct {
	Message string
}

func (ie *InternalError) Error() string {
	return ie.Message
}

// ReportICE raises an internal compiler error.  The error is raised as a panic
// so that it unwinds straight to the nearest deferred CatchErrors.
func ReportICE(message string, args ...interface{}) {
	panic(&InternalError{Message: fmt.Sprintf(message, args...)})
}

// Assert raises an internal compiler error if cond does not hold.
func Assert(cond bool, message string, args ...interface{}) {
	if !cond {
		ReportICE(message, args...)
	}
}

// ReportFatal reports a fatal error and terminates the process with the given
// exit code.  These are expected errors: bad options, unreadable input, a
// missing toolchain, a module that fails verification.
func ReportFatal(code int, message string, args ...interface{}) {
	if rep.logLevel > LogLevelSilent {
		rep.m.Lock()
		displayFatal(fmt.Sprintf(message, args...))
		rep.m.Unlock()
	}

	rep.exit(code)
}

// ReportInputError reports a malformed or unusable input document.
func ReportInputError(err error) {
	ReportFatal(common.ExitBadInput, "%s", err)
}

// ReportError reports a non-fatal error: the build continues but will be
// reported as failed.
func ReportError(message string, args ...interface{}) {
	rep.m.Lock()
	defer rep.m.Unlock()

	rep.errorCount++

	if rep.logLevel > LogLevelSilent {
		displayFatal(fmt.Sprintf(message, args...))
	}
}

// ExitIfErrors terminates the process with code if any non-fatal errors were
// reported.
func ExitIfErrors(code int) {
	if AnyErrors() {
		rep.exit(code)
	}
}

// CatchErrors catches any internal compiler error raised during the build,
// displays it, and exits with the internal error code.  Any other panic is
// propagated unchanged.
// NB: This function must ALWAYS be deferred.
func CatchErrors() {
	if x := recover(); x != nil {
		if ierr, ok := x.(*InternalError); ok {
			rep.m.Lock()
			displayICE(ierr.Message)
			rep.m.Unlock()

			rep.exit(common.ExitInternalError)
			return
		}

		panic(x)
	}
}
