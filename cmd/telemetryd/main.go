// telemetryd is the anonymous usage telemetry collector.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/xtxerr/telemetry/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "telemetryd:", err)
		os.Exit(1)
	}
}
