// Command rfx runs, tests and inspects control surface sessions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/rfx/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
