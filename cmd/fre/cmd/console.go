package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// runConsole reads commands from in until quit is typed, in is exhausted or
// ctx ends. Typing quit calls shutdown.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, shutdown func()) {
	fmt.Fprintln(out, "Welcome to the File Retrieval Engine!")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}
		switch command := strings.TrimSpace(scanner.Text()); {
		case strings.EqualFold(command, "quit"):
			fmt.Fprintln(out, "Shutting down...")
			shutdown()
			return
		case command == "":
		default:
			fmt.Fprintln(out, "Unknown command. Please use 'quit'.")
		}
	}
}
