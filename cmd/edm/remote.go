package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/edmhq/edm/internal/system"
)

const remoteHelp = `edm remote <list|add|del> [-flags]

Manage configured remotes (srv, srvs, ftp, folder).

Example:
  % edm remote add -name=origin -kind=srv -address=example.com:8080 -default
  % edm remote list
  % edm remote del -name=origin
`

func cmdremote(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, remoteHelp)
		os.Exit(2)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return remoteList(ctx, rest)
	case "add":
		return remoteAdd(ctx, rest)
	case "del":
		return remoteDel(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown remote subcommand %q\n", sub)
		fmt.Fprint(os.Stderr, remoteHelp)
		os.Exit(2)
		return nil
	}
}

func remoteList(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("remote list", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	fset.Parse(args)

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	defName := sys.DefaultName()
	for _, rc := range sys.RemoteConfigs() {
		marker := ""
		if rc.Name == defName {
			marker = " (default)"
		}
		fmt.Printf("%s\t%s\t%s%s\n", rc.Name, rc.Kind, rc.Address, marker)
	}
	return nil
}

func remoteAdd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("remote add", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	name := fset.String("name", "", "remote name (required)")
	kind := fset.String("kind", "", "remote kind: srv, srvs, ftp, folder (required)")
	address := fset.String("address", "", "host:port (srv/srvs/ftp) or directory path (folder)")
	username := fset.String("username", "", "credentials, if required")
	password := fset.String("password", "", "credentials, if required")
	isDefault := fset.Bool("default", false, "make this the default remote")
	fset.Parse(args)
	if *name == "" || *kind == "" || *address == "" {
		fset.Usage()
		os.Exit(2)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	return sys.AddRemote(ctx, system.RemoteConfig{
		Name: *name, Kind: *kind, Address: *address,
		Username: *username, Password: *password, Default: *isDefault,
	})
}

func remoteDel(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("remote del", flag.ExitOnError)
	base := fset.String("base", "", "edm base directory")
	name := fset.String("name", "", "remote name (required)")
	fset.Parse(args)
	if *name == "" {
		fset.Usage()
		os.Exit(2)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}
	return sys.DelRemote(ctx, *name)
}
