// Command trader runs the trading signal and execution pipeline.
package main

import (
	"context"
	"fmt"
	"os"

	"trading-core/internal/cli"
	"trading-core/internal/security"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", security.RedactSecrets(err.Error()))
		os.Exit(1)
	}
}
