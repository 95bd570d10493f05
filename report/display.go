package report

import (
	"strings"

	"github.com/pterm/pterm"
)

var (
	SuccessColorFG = pterm.FgLightGreen
	SuccessStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	WarnColorFG    = pterm.FgYellow
	WarnStyleBG    = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	ErrorColorFG   = pterm.FgRed
	ErrorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	InfoColorFG    = pterm.FgLightCyan
	InfoStyleBG    = pterm.NewStyle(pterm.BgLightCyan, pterm.FgBlack)
)

// displayICE displays an internal compiler error message.
func displayICE(message string) {
	ErrorStyleBG.Print("Internal Compiler Error")
	ErrorColorFG.Println(" " + message)
	pterm.Println("This error was not supposed to happen: the IR or the backend is inconsistent.")
	pterm.Println()
}

// displayFatal displays a fatal error message.
func displayFatal(message string) {
	ErrorStyleBG.Print("Fatal Error")
	ErrorColorFG.Println(" " + message)
	pterm.Println()
}

// displayWarning displays a non-fatal warning.
func displayWarning(message string) {
	WarnStyleBG.Print("Warning")
	WarnColorFG.Println(" " + message)
}

// displayInfo displays a tagged informational message.
func displayInfo(tag, message string) {
	InfoStyleBG.Print(tag)
	InfoColorFG.Println(" " + message)
}

// displayPhase displays the start of a pipeline phase.
func displayPhase(name string) {
	pterm.Print(strings.Repeat(" ", 2))
	InfoColorFG.Print("-> ")
	pterm.Println(name)
}

// displayBuildFinished displays the closing message of a build.
func displayBuildFinished(success bool, elapsed string) {
	pterm.Println()
	if success {
		SuccessStyleBG.Print("Build Succeeded")
		SuccessColorFG.Println(" in " + elapsed)
	} else {
		ErrorStyleBG.Print("Build Failed")
		ErrorColorFG.Println(" after " + elapsed)
	}
}
