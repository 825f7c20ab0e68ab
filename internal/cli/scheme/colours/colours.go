package colours

import "github.com/fatih/color"

// Color scheme for the CLI
var (
	Title   = color.New(color.FgCyan, color.Bold)
	Author  = color.New(color.FgMagenta)
	Error   = color.New(color.FgRed, color.Bold)
	Success = color.New(color.FgGreen)
	Info    = color.New(color.FgBlue)
	Warning = color.New(color.FgYellow)
	ID      = color.New(color.FgHiBlack)
	Path    = color.New(color.FgHiWhite, color.Underline)
)

// Outcome picks Success or Warning for a batch that produced got of want.
func Outcome(got, want int) *color.Color {
	if got == want {
		return Success
	}
	return Warning
}
