package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/ownmon/ownmon/internal/cmd"
)

func main() {
	var cli cmd.CLI
	ctx := kong.Parse(&cli,
		kong.Name("ownmon"),
		kong.Description("Application focus and input activity monitor"),
		kong.UsageOnError(),
		kong.Vars{"version": cmd.Version},
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
