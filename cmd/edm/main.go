package main

import (
	"context"
	"fmt"
	"os"

	"github.com/edmhq/edm/internal/proc"
	"github.com/edmhq/edm/internal/system"
)

// openSystem opens the System rooted at base and registers its temp
// directory to be cleared on exit, so a command that returns early
// (error, ^C) still runs clear_tmp instead of leaving scratch extraction
// directories behind — the one cleanup every subcommand shares.
func openSystem(ctx context.Context, base string) (*system.System, error) {
	sys, err := system.Open(ctx, base)
	if err != nil {
		return nil, err
	}
	proc.RegisterAtExit(func() error {
		return sys.ClearTmp(context.Background())
	})
	return sys, nil
}

func funcmain() error {
	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"build":   {cmdbuild},
		"pack":    {cmdpack},
		"get":     {cmdget},
		"toolset": {cmdtoolset},
		"remote":  {cmdremote},
	}

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "edm <command> [-flags] [args]\n")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "\tbuild    - build recipes found under a location\n")
		fmt.Fprintf(os.Stderr, "\tpack     - add/pull/push/rm/ls/clean local packages\n")
		fmt.Fprintf(os.Stderr, "\tget      - resolve a query against the local store, falling back to remotes\n")
		fmt.Fprintf(os.Stderr, "\ttoolset  - list/add/del cross-compilation toolsets\n")
		fmt.Fprintf(os.Stderr, "\tremote   - list/add/del configured remotes\n")
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: edm <command> [options]\n")
		os.Exit(2)
	}

	ctx, canc := proc.InterruptibleContext()
	defer canc()
	runErr := v.fn(ctx, rest)
	if err := proc.RunAtExit(); err != nil {
		if runErr != nil {
			return fmt.Errorf("%s: %v", verb, runErr)
		}
		return fmt.Errorf("%s: cleanup: %w", verb, err)
	}
	if runErr != nil {
		return fmt.Errorf("%s: %v", verb, runErr)
	}
	return nil
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
