// Package builder implements the Builder component (J): the per-recipe
// pipeline from settings resolution through configure, build, install
// and finalize.
package builder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"golang.org/x/xerrors"

	"github.com/edmhq/edm/identity"
	"github.com/edmhq/edm/internal/recipe"
	"github.com/edmhq/edm/internal/system"
)

// CrossMap mirrors the spec's cross-compile map, threaded through every
// recipe in a single Build call.
type CrossMap struct {
	CCompiler    string
	CXXCompiler  string
	CrossArch    string
	CrossOS      string
	SingleThread bool
}

// Options controls a Build call.
type Options struct {
	Force     bool
	Generator string // explicit override; empty means auto-select.
	Cross     CrossMap
}

// Builder drives recipes against a System's Store and toolsets.
type Builder struct {
	Sys *system.System

	// Runner executes subprocesses; overridable in tests.
	Runner Runner
}

// Runner runs one subprocess to completion. The production Runner shells
// out via os/exec; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, dir string, argv []string) error
}

// New returns a Builder operating against sys, using the real subprocess
// runner.
func New(sys *system.System) *Builder {
	return &Builder{Sys: sys, Runner: execRunner{}}
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("builder: empty argv")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Build runs every recipe's pipeline in order, never aborting the run on
// a per-recipe failure. It returns the number of recipes that failed —
// the spec's exit-code contract — and the last error for logging.
func (b *Builder) Build(ctx context.Context, recipes []*recipe.Recipe, opts Options) (failures int, err error) {
	for _, r := range recipes {
		if buildErr := b.buildOne(ctx, r, opts); buildErr != nil {
			failures++
			err = buildErr
			fmt.Fprintf(os.Stderr, "builder: %s: %v\n", r.Name, buildErr)
		}
	}
	return failures, err
}

func (b *Builder) buildOne(ctx context.Context, r *recipe.Recipe, opts Options) (err error) {
	scratch, err := b.Sys.NewTempDir(r.Name)
	if err != nil {
		return xerrors.Errorf("builder: %s: scratch dir: %w", r.Name, err)
	}
	defer func() {
		if cleanErr := runSteps(ctx, b.Runner, scratch, r.CleanSteps()); cleanErr != nil && err == nil {
			err = xerrors.Errorf("builder: %s: clean: %w", r.Name, cleanErr)
		}
		os.RemoveAll(scratch)
	}()

	b.resolveSettings(r, opts.Cross)

	// Step 2: skip-if-present.
	exact := identity.New(r.Name, r.Version, r.Settings.OS, r.Settings.Arch, identity.Kind(r.Kind),
		r.Settings.Compiler, r.Settings.Glibc, r.Settings.BuildDate)
	if !opts.Force {
		if matches := b.Sys.Store.Query(exact); len(matches) > 0 {
			return nil
		}
	}

	// Step 3: fetch sources.
	if err := validateSourceDir(r.SourceDir); err != nil {
		return xerrors.Errorf("builder: %s: %w", r.Name, err)
	}
	if err := runSteps(ctx, b.Runner, r.SourceDir, r.SourceSteps()); err != nil {
		return xerrors.Errorf("builder: %s: source: %w", r.Name, err)
	}

	// Step 4: resolve dependencies.
	prefixPath, err := b.resolveDependencies(r)
	if err != nil {
		return xerrors.Errorf("builder: %s: %w", r.Name, err)
	}

	// Step 5: configure.
	installDir := filepath.Join(scratch, "install")
	buildDir := filepath.Join(scratch, "build")
	if err := runSteps(ctx, b.Runner, r.SourceDir, r.ConfigureSteps()); err != nil {
		return xerrors.Errorf("builder: %s: configure hook: %w", r.Name, err)
	}
	configureArgv := b.configureArgv(r, opts, installDir, buildDir, prefixPath)
	if err := b.Runner.Run(ctx, "", configureArgv); err != nil {
		return xerrors.Errorf("builder: %s: cmake configure: %w", r.Name, err)
	}

	// Step 6: build & install, one invocation per configuration.
	for _, cfg := range configurations(r) {
		argv := []string{"cmake", "--build", buildDir, "--target", "install", "--config", cfg}
		if opts.Cross.SingleThread {
			argv = append(argv, "-j", "1")
		}
		if err := b.Runner.Run(ctx, "", argv); err != nil {
			return xerrors.Errorf("builder: %s: cmake build (%s): %w", r.Name, cfg, err)
		}
	}

	// Step 7: finalize.
	if err := runSteps(ctx, b.Runner, installDir, r.InstallSteps()); err != nil {
		return xerrors.Errorf("builder: %s: install hook: %w", r.Name, err)
	}
	sidecar, err := renameio.TempFile("", filepath.Join(installDir, "edp.info"))
	if err != nil {
		return xerrors.Errorf("builder: %s: writing sidecar: %w", r.Name, err)
	}
	defer sidecar.Cleanup()
	if err := identity.WriteSidecar(sidecar, exact); err != nil {
		return xerrors.Errorf("builder: %s: writing sidecar: %w", r.Name, err)
	}
	if err := sidecar.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("builder: %s: writing sidecar: %w", r.Name, err)
	}
	if _, err := b.Sys.ImportFolder(ctx, installDir); err != nil {
		return xerrors.Errorf("builder: %s: importing: %w", r.Name, err)
	}
	return nil
}

// resolveSettings implements step 1.
func (b *Builder) resolveSettings(r *recipe.Recipe, cross CrossMap) {
	now := time.Now().Truncate(time.Second)
	if r.Kind == recipe.KindHeader {
		r.Define(recipe.Settings{
			OS: identity.AnyOS, Arch: identity.AnyArch, Compiler: identity.AnyCompiler,
			BuildDate: now,
		})
		return
	}

	os_, arch := b.hostOrCross(cross)
	compiler := identity.GNU
	glibc := ""
	if os_ == identity.Linux {
		glibc = probeGlibc()
	}
	r.Define(recipe.Settings{
		OS: os_, Arch: arch, Compiler: compiler, Glibc: glibc,
		InstallPath: "", BuildDate: now,
	})
}

// hostOrCross consults the cross-map first, then the default toolset (the
// supplemented toolset-aware resolution; only a toolset that is not
// auto-filled counts, and only its OS and arch are used), then the host
// probe.
func (b *Builder) hostOrCross(cross CrossMap) (identity.OS, identity.Arch) {
	if cross.CrossOS != "" || cross.CrossArch != "" {
		os_ := identity.OS(cross.CrossOS)
		arch := identity.Arch(cross.CrossArch)
		if os_ == "" {
			os_ = system.ProbeHostOS()
		}
		if arch == "" {
			arch = system.ProbeHostArch()
		}
		return os_, arch
	}
	for _, t := range b.Sys.Toolsets() {
		if t.Default && !t.Autofill {
			return identity.OS(t.OS), identity.Arch(t.Arch)
		}
	}
	return system.ProbeHostOS(), system.ProbeHostArch()
}

func probeGlibc() string {
	out, err := exec.Command("ldd", "--version").Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if !scanner.Scan() {
		return ""
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func validateSourceDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("source_dir not set")
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("source_dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("source_dir %s is not a directory", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "CMakeLists.txt")); err != nil {
		return fmt.Errorf("source_dir %s has no CMakeLists.txt", dir)
	}
	return nil
}

// resolveDependencies implements step 4: fill in missing os/arch from the
// recipe's own settings, query the store, abort on any miss, and collect
// a semicolon-joined CMAKE_PREFIX_PATH.
func (b *Builder) resolveDependencies(r *recipe.Recipe) (string, error) {
	var dirs []string
	for _, dep := range r.Dependencies {
		os_ := dep.OS
		if os_ == "" {
			os_ = string(r.Settings.OS)
		}
		arch := dep.Arch
		if arch == "" {
			arch = string(r.Settings.Arch)
		}
		q := identity.New(dep.Name, dep.Version, identity.OS(os_), identity.Arch(arch),
			identity.Kind(dep.Kind), identity.Compiler(dep.Compiler), dep.Glibc, time.Time{})
		matches := b.Sys.Store.Query(q)
		if len(matches) == 0 {
			return "", fmt.Errorf("missing dependency %s", identity.Format(q))
		}
		best := matches[len(matches)-1]
		if best.ConfigDirs != "" {
			dirs = append(dirs, strings.Split(best.ConfigDirs, ";")...)
		}
	}
	return strings.Join(dirs, ";"), nil
}

func configurations(r *recipe.Recipe) []string {
	if r.Kind != recipe.KindShared && r.Kind != recipe.KindStatic {
		return []string{"Release"}
	}
	return r.Configurations()
}

// configureArgv implements step 5's generator selection and
// cache-variable construction, invoked as an explicit argv vector —
// never a shell string.
func (b *Builder) configureArgv(r *recipe.Recipe, opts Options, installDir, buildDir, prefixPath string) []string {
	generator := opts.Generator
	if generator == "" {
		configs := configurations(r)
		if len(configs) > 1 {
			generator = "Ninja Multi-Config"
		} else {
			generator = "Ninja"
		}
	}

	argv := []string{"cmake", "-S", r.SourceDir, "-B", buildDir, "-G", generator}
	argv = append(argv, "-DCMAKE_INSTALL_PREFIX="+installDir)
	shared := "OFF"
	if r.Kind == recipe.KindShared {
		shared = "ON"
	}
	argv = append(argv, "-DBUILD_SHARED_LIBS="+shared)
	if r.Settings.OS == identity.Linux {
		argv = append(argv, "-DCMAKE_SKIP_INSTALL_RPATH=ON", "-DCMAKE_POSITION_INDEPENDENT_CODE=ON")
	}
	if prefixPath != "" {
		argv = append(argv, "-DCMAKE_PREFIX_PATH="+prefixPath)
	}
	if opts.Cross.CCompiler != "" {
		argv = append(argv, "-DCMAKE_C_COMPILER="+opts.Cross.CCompiler)
	}
	if opts.Cross.CXXCompiler != "" {
		argv = append(argv, "-DCMAKE_CXX_COMPILER="+opts.Cross.CXXCompiler)
	}
	for k, v := range r.CacheVariables {
		argv = append(argv, fmt.Sprintf("-D%s=%s", k, v))
	}
	return argv
}

func runSteps(ctx context.Context, runner Runner, dir string, steps []string) error {
	for _, step := range steps {
		fields := strings.Fields(step)
		if len(fields) == 0 {
			continue
		}
		if err := runner.Run(ctx, dir, fields); err != nil {
			return err
		}
	}
	return nil
}
