package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	rootCmd, cli := NewRootCommand()

	err := rootCmd.Execute()
	cli.cleanup()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var coded *ExitCodeError
	if errors.As(err, &coded) {
		os.Exit(coded.Code)
	}
	// Anything uncoded came from flag or argument parsing.
	os.Exit(2)
}
