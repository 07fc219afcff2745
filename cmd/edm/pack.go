package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/edmhq/edm/identity"
	"github.com/edmhq/edm/internal/manager"
)

const packHelp = `edm pack <add|pull|push|ls|rm|clean> [-flags]

Manage packages in the local store and a named remote.

Example:
  % edm pack add ./build/install
  % edm pack ls -name=fmtlib
  % edm pack push -name=fmtlib -version=10.0 -remote=origin
  % edm pack pull -name=fmtlib -version=10.0 -remote=origin
  % edm pack clean -older-than=720h
`

func cmdpack(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, packHelp)
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		return packAdd(ctx, rest)
	case "ls":
		return packLs(ctx, rest)
	case "push":
		return packPush(ctx, rest)
	case "pull":
		return packPull(ctx, rest)
	case "rm":
		return packRm(ctx, rest)
	case "clean":
		return packClean(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown pack subcommand %q\n", sub)
		fmt.Fprint(os.Stderr, packHelp)
		os.Exit(2)
		return nil
	}
}

func packAdd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("pack add", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	fset.Parse(args)
	if fset.NArg() != 1 {
		fset.Usage()
		os.Exit(2)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	dep, err := sys.ImportFolder(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(dep.BasePath)
	return nil
}

func packLs(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("pack ls", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	remote := fset.String("remote", "", "also list matches on this remote")
	q := registerQueryFlags(fset)
	fset.Parse(args)

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	local, remoteMatches, err := manager.New(sys).List(ctx, q.properties(), *remote)
	if err != nil {
		return err
	}
	for _, dep := range local {
		fmt.Printf("local\t%s\n", identity.Format(dep.Properties))
	}
	for _, p := range remoteMatches {
		fmt.Printf("%s\t%s\n", *remote, identity.Format(p))
	}
	return nil
}

func packPush(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("pack push", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	remote := fset.String("remote", "", "remote to push to (defaults to the configured default remote)")
	force := fset.Bool("force", false, "overwrite an existing remote object")
	q := registerQueryFlags(fset)
	fset.Parse(args)
	if *q.name == "" {
		fset.Usage()
		os.Exit(2)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	matches := sys.Store.Query(q.properties())
	if len(matches) == 0 {
		return fmt.Errorf("no local package matches %s", identity.Format(q.properties()))
	}
	return manager.New(sys).Push(ctx, *remote, matches[len(matches)-1], *force)
}

func packPull(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("pack pull", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	remote := fset.String("remote", "", "remote to pull from (defaults to the configured default remote)")
	q := registerQueryFlags(fset)
	fset.Parse(args)
	if *q.name == "" {
		fset.Usage()
		os.Exit(2)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	dep, err := manager.New(sys).Pull(ctx, *remote, q.properties())
	if err != nil {
		return err
	}
	fmt.Println(dep.BasePath)
	return nil
}

func packRm(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("pack rm", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	q := registerQueryFlags(fset)
	fset.Parse(args)
	if *q.name == "" {
		fset.Usage()
		os.Exit(2)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	removed, err := sys.Store.Delete(q.properties())
	if err != nil {
		return err
	}
	for _, p := range removed {
		fmt.Printf("removed\t%s\n", identity.Format(p))
	}
	return nil
}

func packClean(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("pack clean", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	olderThan := fset.Duration("older-than", 30*24*time.Hour, "remove packages older than this")
	fset.Parse(args)

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	removed, err := manager.New(sys).Prune(*olderThan)
	if err != nil {
		return err
	}
	for _, p := range removed {
		fmt.Printf("pruned\t%s\n", identity.Format(p))
	}
	return nil
}
