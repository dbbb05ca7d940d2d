package errors

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// DisplayError formats and displays an error on stderr
func DisplayError(err error) {
	FprintError(os.Stderr, err, noColor())
}

// FprintError writes err to w, with guidance when it is a HealError
func FprintError(w io.Writer, err error, disableColor bool) {
	color.NoColor = disableColor

	healErr, ok := err.(*HealError)
	if !ok {
		fmt.Fprintf(w, "%s\n", color.RedString("Error: %v", err))
		return
	}

	colorFunc := getErrorStyle(healErr.Type)

	fmt.Fprintf(w, "\n%s\n", colorFunc(healErr.Message))

	if healErr.Cause != "" {
		fmt.Fprintf(w, "   %s %s\n", color.YellowString("Cause:"), color.HiBlackString(healErr.Cause))
	}

	if healErr.Environment != "" {
		fmt.Fprintf(w, "   %s %s\n", color.CyanString("Environment:"), color.HiBlackString(healErr.Environment))
	}

	if len(healErr.Solutions) > 0 {
		fmt.Fprintf(w, "\n   %s\n", color.GreenString("Solutions:"))
		for i, solution := range healErr.Solutions {
			fmt.Fprintf(w, "   %s %s\n", color.HiBlackString(fmt.Sprintf("%d.", i+1)), solution)
		}
	}

	if healErr.Verify != "" {
		fmt.Fprintf(w, "\n   %s %s\n", color.BlueString("Verify:"), color.HiWhiteString(healErr.Verify))
	}

	if healErr.Help != "" {
		fmt.Fprintf(w, "   %s %s\n", color.MagentaString("Help:"), color.HiWhiteString(healErr.Help))
	}

	fmt.Fprintln(w)
}

// getErrorStyle returns the appropriate color function for an error type
func getErrorStyle(errType ErrorType) func(format string, a ...interface{}) string {
	switch errType {
	case ErrorTypeConfiguration, ErrorTypeValidation:
		return color.YellowString
	case ErrorTypeService:
		return color.CyanString
	case ErrorTypeNotFound:
		return color.MagentaString
	default:
		return color.RedString
	}
}

func noColor() bool {
	return os.Getenv("NO_COLOR") != "" || os.Getenv("ILMARINEN_NO_COLOR") != ""
}
