package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/tonimelisma/adltransfer/internal/options"
)

// errorColor is the ANSI red used for fatal errors.
const errorColor = lipgloss.Color("9")

// statusf prints a status message.
func statusf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// reportError prints err to w the way its kind calls for: parse errors get
// a hint to run --help, precondition failures a plain line, everything else
// a red line. Color is only emitted when w is a terminal.
func reportError(w io.Writer, err error) {
	var perr *options.ParseError

	switch {
	case errors.As(err, &perr):
		fmt.Fprintf(w, "adltransfer: %v\n", perr)
		fmt.Fprintln(w, "Try `adltransfer --help' for more information.")
	case isPrecondition(err):
		fmt.Fprintln(w, err)
	default:
		style := lipgloss.NewRenderer(w).NewStyle().Foreground(errorColor)
		fmt.Fprintln(w, style.Render(err.Error()))
	}
}
