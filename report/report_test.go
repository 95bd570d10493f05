package report

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m910q/Vale/common"
)

type exitCalled struct {
	code int
}

// captureReporter redirects output into a buffer and makes exits panic with
// their code so tests can observe them.
func captureReporter(t *testing.T, logLevel int) *bytes.Buffer {
	buff := &bytes.Buffer{}
	SetOutput(buff)
	pterm.DisableColor()

	prev := SetExitFunc(func(code int) { panic(exitCalled{code}) })
	InitReporter(logLevel)

	t.Cleanup(func() {
		SetExitFunc(prev)
		SetOutput(os.Stdout)
		pterm.EnableColor()
		InitReporter(LogLevelVerbose)
	})

	return buff
}

func TestReportFatalExitsWithCode(t *testing.T) {
	buff := captureReporter(t, LogLevelVerbose)

	assert.PanicsWithValue(t, exitCalled{common.ExitVerifyFailed}, func() {
		ReportFatal(common.ExitVerifyFailed, "module failed verification: %s", "bad phi")
	})
	assert.Contains(t, buff.String(), "module failed verification: bad phi")
}

func TestReportInputErrorUsesBadInputCode(t *testing.T) {
	captureReporter(t, LogLevelSilent)

	assert.PanicsWithValue(t, exitCalled{common.ExitBadInput}, func() {
		ReportInputError(errors.New("empty IR document"))
	})
}

func TestCatchErrorsHandlesICE(t *testing.T) {
	buff := captureReporter(t, LogLevelVerbose)

	assert.PanicsWithValue(t, exitCalled{common.ExitInternalError}, func() {
		defer CatchErrors()
		ReportICE("struct `%s` translated before declaration", "Point")
	})
	assert.Contains(t, buff.String(), "struct `Point` translated before declaration")
}

func TestCatchErrorsPropagatesOtherPanics(t *testing.T) {
	captureReporter(t, LogLevelSilent)

	assert.PanicsWithValue(t, "boom", func() {
		defer CatchErrors()
		panic("boom")
	})
}

func TestAssert(t *testing.T) {
	assert.NotPanics(t, func() { Assert(true, "never") })

	defer func() {
		x := recover()
		require.NotNil(t, x)
		ierr, ok := x.(*InternalError)
		require.True(t, ok)
		assert.Equal(t, "prefix mismatch at field 2", ierr.Error())
	}()
	Assert(false, "prefix mismatch at field %d", 2)
}

func TestWarningsRespectLogLevel(t *testing.T) {
	buff := captureReporter(t, LogLevelError)
	ReportWarning("could not write assembly")
	assert.NotContains(t, buff.String(), "could not write assembly")

	buff = captureReporter(t, LogLevelWarn)
	ReportWarning("could not write assembly")
	assert.Contains(t, buff.String(), "could not write assembly")
}

func TestReportErrorMarksFailure(t *testing.T) {
	captureReporter(t, LogLevelSilent)

	assert.False(t, AnyErrors())
	assert.NotPanics(t, func() { ExitIfErrors(common.ExitEmitFailed) })

	ReportError("could not write %s", "point.o")
	assert.True(t, AnyErrors())
	assert.PanicsWithValue(t, exitCalled{common.ExitEmitFailed}, func() {
		ExitIfErrors(common.ExitEmitFailed)
	})
}

func TestBuildFinishedReflectsErrors(t *testing.T) {
	buff := captureReporter(t, LogLevelVerbose)
	ReportBuildFinished()
	assert.Contains(t, buff.String(), "Build Succeeded")

	buff = captureReporter(t, LogLevelVerbose)
	ReportError("could not write %s", "point.s")
	ReportBuildFinished()
	assert.Contains(t, buff.String(), "could not write point.s")
	assert.Contains(t, buff.String(), "Build Failed")
}

func TestReportOutputWrittenShowsSize(t *testing.T) {
	buff := captureReporter(t, LogLevelVerbose)

	ReportOutputWritten("out/point.o", 2048)
	assert.Contains(t, buff.String(), "out/point.o")
	assert.Contains(t, buff.String(), "2.0 kB")
}
