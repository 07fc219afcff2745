package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/edmhq/edm/internal/manager"
)

const getHelp = `edm get -name=<name> [-flags]

Resolve a package query against the local store. On a miss, fall through
every configured remote (default first), pull the first match, and print
its CMake config directory (a ready-made CMAKE_PREFIX_PATH entry).

Example:
  % edm get -name=fmtlib -version='10.*'
`

func cmdget(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("get", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory (defaults to ~/.edm)")
	q := registerQueryFlags(fset)
	fset.Usage = func() {
		fmt.Fprint(os.Stderr, getHelp)
		fset.PrintDefaults()
	}
	fset.Parse(args)
	if *q.name == "" {
		fset.Usage()
		os.Exit(2)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	dep, err := manager.New(sys).Get(ctx, q.properties())
	if err != nil {
		return err
	}
	fmt.Println(dep.ConfigDirs)
	return nil
}
