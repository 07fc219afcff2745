package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/edmhq/edm/internal/system"
)

const toolsetHelp = `edm toolset <list|add|del> [-flags]

Manage named toolsets Builder can select for cross-compilation.

Example:
  % edm toolset add -name=armhf -compiler=/usr/bin/arm-linux-gnueabihf-gcc -os=linux -arch=armv7
  % edm toolset list
  % edm toolset del -name=armhf
`

func cmdtoolset(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, toolsetHelp)
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return toolsetList(ctx, rest)
	case "add":
		return toolsetAdd(ctx, rest)
	case "del":
		return toolsetDel(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown toolset subcommand %q\n", sub)
		fmt.Fprint(os.Stderr, toolsetHelp)
		os.Exit(2)
		return nil
	}
}

func toolsetList(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("toolset list", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	fset.Parse(args)

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	for _, t := range sys.Toolsets() {
		def := ""
		if t.Default {
			def = " (default)"
		}
		fmt.Printf("%s\t%s\t%s/%s%s\n", t.Name, t.CompilerPath, t.OS, t.Arch, def)
	}
	return nil
}

func toolsetAdd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("toolset add", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	name := fset.String("name", "", "toolset name (required)")
	compiler := fset.String("compiler", "", "path to the compiler (required)")
	osName := fset.String("os", "", "target OS (blank = host probe)")
	arch := fset.String("arch", "", "target architecture (blank = host probe)")
	glibc := fset.String("glibc", "", "glibc version this toolset targets")
	isDefault := fset.Bool("default", false, "make this the default toolset")
	fset.Parse(args)
	if *name == "" || *compiler == "" {
		fset.Usage()
		os.Exit(2)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	return sys.AddToolset(ctx, system.Toolset{
		Name: *name, CompilerPath: *compiler, OS: *osName, Arch: *arch, Glibc: *glibc, Default: *isDefault,
	})
}

func toolsetDel(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("toolset del", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	name := fset.String("name", "", "toolset name (required)")
	fset.Parse(args)
	if *name == "" {
		fset.Usage()
		os.Exit(2)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	return sys.DelToolset(ctx, *name)
}
