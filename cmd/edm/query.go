package main

import (
	"flag"
	"time"

	"github.com/edmhq/edm/identity"
)

// queryFlags holds the identity attributes every pack/get subcommand
// accepts to build a query. Unset fields are left as wildcards.
type queryFlags struct {
	name, version, os, arch, kind, compiler, glibc *string
}

func registerQueryFlags(fset *flag.FlagSet) *queryFlags {
	return &queryFlags{
		name:     fset.String("name", "", "package name (glob, required)"),
		version:  fset.String("version", "*", "version (glob)"),
		os:       fset.String("os", "", "operating system (blank or \"any\" = unconstrained)"),
		arch:     fset.String("arch", "", "architecture (blank or \"any\" = unconstrained)"),
		kind:     fset.String("kind", "", "linkage kind: shared, static, header (blank = unconstrained)"),
		compiler: fset.String("compiler", "", "compiler/ABI family (blank or \"any\" = unconstrained)"),
		glibc:    fset.String("glibc", "", "glibc version (blank = unconstrained)"),
	}
}

func (q *queryFlags) properties() identity.Properties {
	return identity.New(*q.name, *q.version,
		identity.OS(*q.os), identity.Arch(*q.arch), identity.Kind(*q.kind),
		identity.Compiler(*q.compiler), *q.glibc, time.Time{})
}
