// Package cli provides error handling utilities for CLI output.
package cli

import (
	"fmt"
	"os"

	gyreerrors "github.com/gyrelabs/gyre/internal/errors"
)

// PrintError prints an error to stderr with appropriate formatting.
// If the error is a GyreError, it uses the user-friendly format.
// Otherwise, it prints a simple error message.
func PrintError(err error) {
	if gyreErr := gyreerrors.AsGyreError(err); gyreErr != nil {
		fmt.Fprintln(os.Stderr, gyreErr.UserMessage())
		if verbose {
			// In verbose mode, also print the error code and cause
			fmt.Fprintf(os.Stderr, "\nCode: %s\n", gyreErr.Code)
			if gyreErr.Cause != nil {
				fmt.Fprintf(os.Stderr, "Cause: %v\n", gyreErr.Cause)
			}
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
