package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/edmhq/edm/internal/builder"
	"github.com/edmhq/edm/internal/discover"
)

const buildHelp = `edm build [-flags] <location>

Build every *.edm.toml recipe found under <location>.

Example:
  % edm build -recursive ./third_party
`

func cmdbuild(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("build", flag.ExitOnError)
	var (
		base           = fset.String("base", "", "edm base directory (defaults to ~/.edm)")
		recursive      = fset.Bool("recursive", false, "discover recipes in subdirectories, unbounded")
		recursiveDepth = fset.Int("recursive-depth", 0, "discover recipes up to N directories deep (overrides -recursive)")
		force          = fset.Bool("force", false, "rebuild even if a matching package already exists")
		generator      = fset.String("generator", "", "CMake generator override (default: auto-select)")
		crossC         = fset.String("cross-c", "", "C compiler path for cross-compilation")
		crossCXX       = fset.String("cross-cxx", "", "C++ compiler path for cross-compilation")
		crossArch      = fset.String("cross-arch", "", "target architecture for cross-compilation")
		crossOS        = fset.String("cross-os", "", "target OS for cross-compilation")
		singleThread   = fset.Bool("single-thread", false, "build with -j 1")
	)
	fset.Usage = func() {
		fmt.Fprint(os.Stderr, buildHelp)
		fset.PrintDefaults()
	}
	fset.Parse(args)
	if fset.NArg() != 1 {
		fset.Usage()
		os.Exit(2)
	}
	location := fset.Arg(0)

	depth := 0
	if *recursive {
		depth = -1
	}
	if *recursiveDepth != 0 {
		depth = *recursiveDepth
	}

	recipes, err := discover.Discover(location, depth)
	if err != nil {
		return err
	}
	if len(recipes) == 0 {
		return fmt.Errorf("no recipes found under %s", location)
	}

	sys, err := openSystem(ctx, *base)
	if err != nil {
		return err
	}

	b := builder.New(sys)
	opts := builder.Options{
		Force:     *force,
		Generator: *generator,
		Cross: builder.CrossMap{
			CCompiler:    *crossC,
			CXXCompiler:  *crossCXX,
			CrossArch:    *crossArch,
			CrossOS:      *crossOS,
			SingleThread: *singleThread,
		},
	}
	failures, buildErr := b.Build(ctx, recipes, opts)
	if failures > 0 {
		return fmt.Errorf("%d of %d recipes failed (last error: %v)", failures, len(recipes), buildErr)
	}
	return nil
}
