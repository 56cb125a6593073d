// Command timelock wraps messages in time-lock puzzles.
package main

import (
	"context"
	"fmt"
	"os"

	"timelock/internal/cli"
)

func main() {
	if err := cli.Run(context.Background(), os.Args[1:], cli.Options{}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
