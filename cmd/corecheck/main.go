// Command corecheck brings up the engine from a configuration file,
// installs the built-in plugins, runs the registry consistency checks,
// and prints an aggregate report. It exits non-zero when validation
// finds problems, so it can gate CI and deploy pipelines.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/AgenticGames/miningspice/internal/config"
	"github.com/AgenticGames/miningspice/internal/core"
	"github.com/AgenticGames/miningspice/plugins/stone"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("corecheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath string
		timeout    time.Duration
		verbose    bool
	)
	fs.StringVar(&configPath, "config", "", "path to config yaml (default: $MININGSPICE_CONFIG or miningspice.yaml)")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for startup and validation")
	fs.BoolVar(&verbose, "v", false, "print per-type detail")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "corecheck: config: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c, err := core.New(ctx, cfg, core.Options{LogWriter: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "corecheck: %v\n", err)
		return 2
	}
	defer func() {
		if err := c.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(stderr, "corecheck: shutdown: %v\n", err)
		}
	}()

	if err := c.InstallPlugin(stone.New()); err != nil {
		fmt.Fprintf(stderr, "corecheck: %v\n", err)
		return 2
	}
	if err := c.Initialize(ctx); err != nil {
		fmt.Fprintf(stderr, "corecheck: initialize: %v\n", err)
		return 1
	}

	errs := c.Validate(ctx)
	report(stdout, c, errs, verbose)
	if len(errs) > 0 {
		return 1
	}
	return 0
}

func report(w io.Writer, c *core.Core, errs []error, verbose bool) {
	fmt.Fprintf(w, "types:      %d\n", c.Materials().TypeCount())
	fmt.Fprintf(w, "zone kinds: %d\n", c.ZoneKinds().KindCount())
	fmt.Fprintf(w, "workers:    %d\n", c.Scheduler().Workers())
	fmt.Fprintf(w, "domains:    %d\n", c.Topology().DomainCount())
	if verbose {
		for _, p := range c.Plugins() {
			fmt.Fprintf(w, "plugin:     %s %s\n", p.Name(), p.Version())
		}
	}
	if len(errs) == 0 {
		fmt.Fprintln(w, "validation: ok")
		return
	}
	fmt.Fprintf(w, "validation: %d problem(s)\n", len(errs))
	for _, err := range errs {
		fmt.Fprintf(w, "  - %v\n", err)
	}
}
