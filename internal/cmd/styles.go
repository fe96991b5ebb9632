package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	colorError   = lipgloss.Color("196") // bright red
	colorWarning = lipgloss.Color("214") // orange
	colorOK      = lipgloss.Color("76")  // green
	colorMuted   = lipgloss.Color("242") // gray
)

// Diagnostics go to stderr, so color detection follows stderr rather than
// stdout (which may be redirected by the caller).
var stderrRenderer = lipgloss.NewRenderer(os.Stderr)

var (
	errorLabelStyle = stderrRenderer.NewStyle().
			Bold(true).
			Foreground(colorError)

	warningLabelStyle = stderrRenderer.NewStyle().
				Bold(true).
				Foreground(colorWarning)

	hintStyle = stderrRenderer.NewStyle().
			Foreground(colorMuted)

	// stdout styles
	currentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorOK)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", errorLabelStyle.Render("Error:"), err)
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", warningLabelStyle.Render("Warning:"), msg)
}

func printHint(w io.Writer, msg string) {
	fmt.Fprintln(w, hintStyle.Render(msg))
}
