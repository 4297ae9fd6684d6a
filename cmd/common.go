package cmd

import "calypsocore/output"

// printSuccess prints a success message unless --json suppresses
// human-readable progress output.
func printSuccess(msg string) {
	if !outputJSON {
		output.PrintSuccess(msg)
	}
}

// printWarning prints a warning message unless --json suppresses
// human-readable progress output.
func printWarning(msg string) {
	if !outputJSON {
		output.PrintWarning(msg)
	}
}

