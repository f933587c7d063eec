// Command vi is the Viper IL driver: it parses, links, verifies, runs,
// optimizes, and interactively debugs .il modules, in the shape of the
// teacher's cmd/ailang driver (flag-based subcommands, fatih/color
// output categorization, -version/-help).
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"

	"github.com/splanck/viper/internal/bridge"
	"github.com/splanck/viper/internal/diag"
	"github.com/splanck/viper/internal/il"
	"github.com/splanck/viper/internal/ilbuilder"
	"github.com/splanck/viper/internal/iltext"
	"github.com/splanck/viper/internal/link"
	"github.com/splanck/viper/internal/manifest"
	"github.com/splanck/viper/internal/passes/constfold"
	"github.com/splanck/viper/internal/passes/mem2reg"
	"github.com/splanck/viper/internal/replvm"
	"github.com/splanck/viper/internal/rtname"
	"github.com/splanck/viper/internal/verify"
	"github.com/splanck/viper/internal/vm"
)

var (
	// Version info, set by ldflags during build.
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"

	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	helpFlag := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *versionFlag {
		printVersion()
		return
	}
	if *helpFlag || flag.NArg() == 0 {
		printHelp()
		return
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "run":
		cmdRun(args)
	case "verify":
		cmdVerify(args)
	case "build":
		cmdBuild(args)
	case "opt":
		cmdOpt(args)
	case "repl":
		cmdRepl(args)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command '%s'\n", red("Error"), command)
		printHelp()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("vi %s\n", bold(Version))
	if Commit != "unknown" {
		fmt.Printf("Commit: %s\n", Commit)
	}
	if BuildTime != "unknown" {
		fmt.Printf("Built:  %s\n", BuildTime)
	}
}

func printHelp() {
	fmt.Println(bold("vi - the Viper IL driver"))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vi <command> [flags] <file.il> [file2.il ...]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Printf("  %s <files>    Verify, then execute @main (or -entry)\n", cyan("run"))
	fmt.Printf("  %s <files>    Verify one or more linked modules\n", cyan("verify"))
	fmt.Printf("  %s <files>    Verify, then re-serialize the linked module\n", cyan("build"))
	fmt.Printf("  %s <files>    Verify, run mem2reg+constfold, report statistics\n", cyan("opt"))
	fmt.Printf("  %s [files]    Start the interactive VM debugger\n", cyan("repl"))
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -version        Print version information")
	fmt.Println("  -help           Show this help message")
	fmt.Println("  -entry <name>   Entry function for run/repl (default \"main\")")
	fmt.Println("  -emit-il        Print the linked/optimized module's textual IL")
	fmt.Println("  -json-errors    Render diagnostics as JSON, one per line")
	fmt.Println("  -o <file>       Write build's output IL to a file instead of stdout")
	fmt.Println()
	fmt.Println("Inputs named in viper.yaml's search_paths (in the current directory")
	fmt.Println("or an ancestor) may be given by bare name instead of a full path.")
}

// loadAndLink resolves each input against the project manifest's search
// paths, parses the resulting files independently, then links them with
// internal/link.Merge, regardless of whether there is one file or many —
// a single file is the degenerate one-unit link.
func loadAndLink(rawFiles []string) (*il.Module, *diag.Accumulator) {
	diags := &diag.Accumulator{}
	if len(rawFiles) == 0 {
		diags.Add(diag.New("driver", diag.DriverNoInputs, "no input files given"))
		return nil, diags
	}
	files := resolveInputs(rawFiles)
	units := make([]link.Unit, 0, len(files))
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			diags.Add(diag.New("driver", diag.DriverInputUnreadable, fmt.Sprintf("cannot read %s: %v", f, err)))
			continue
		}
		res := iltext.Parse(f, src)
		diags.Reports = append(diags.Reports, res.Diags.Reports...)
		units = append(units, link.Unit{Path: f, Module: res.Module})
	}
	if diags.HasErrors() {
		return nil, diags
	}
	merged, linkDiags := link.Merge(units)
	diags.Reports = append(diags.Reports, linkDiags.Reports...)
	return merged, diags
}

func printDiags(diags *diag.Accumulator, jsonErrors bool) {
	for _, r := range diags.Reports {
		if jsonErrors {
			s, err := r.ToJSON(true)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
				continue
			}
			fmt.Fprintln(os.Stderr, s)
			continue
		}
		label := red("error")
		if r.Severity == diag.Warning.String() {
			label = yellow("warning")
		}
		fmt.Fprintf(os.Stderr, "%s[%s] %s: %s\n", label, r.Phase, r.Code, r.Message)
	}
}

// verifyLinked runs the structural/typing/dominance/EH verifier (C5) over
// an already-linked module, folding its diagnostics into the link
// accumulator so one pass of printDiags reports everything.
func verifyLinked(mod *il.Module, diags *diag.Accumulator) bool {
	vdiags, ok := verify.Module(mod)
	diags.Reports = append(diags.Reports, vdiags.Reports...)
	return ok
}

// newDefaultHost wires the console streams the VM's bridge externs
// observe; run/repl both read stdin and write stdout through it rather
// than letting bridge funcs reach for os.Stdin/os.Stdout directly.
func newDefaultHost() *bridge.Host {
	return bridge.NewHost(os.Stdout, os.Stdin)
}

func newDefaultRegistry() *bridge.Registry {
	return bridge.NewRegistry()
}

func parseAndVerify(files []string, jsonErrors bool) (*il.Module, bool) {
	mod, diags := loadAndLink(files)
	if diags.HasErrors() {
		printDiags(diags, jsonErrors)
		return nil, false
	}
	ok := verifyLinked(mod, diags)
	printDiags(diags, jsonErrors)
	return mod, ok
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	entry := fs.String("entry", "main", "Entry function to execute")
	jsonErrors := fs.Bool("json-errors", false, "Render diagnostics as JSON")
	fs.Parse(args)

	mod, ok := parseAndVerify(fs.Args(), *jsonErrors)
	if !ok {
		os.Exit(1)
	}

	reg := newDefaultRegistry()
	host := newDefaultHost()
	machine := vm.New(mod, host, reg, os.Stderr)

	code, err := machine.Run(*entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
		os.Exit(1)
	}
	os.Exit(code)
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	jsonErrors := fs.Bool("json-errors", false, "Render diagnostics as JSON")
	fs.Parse(args)

	_, ok := parseAndVerify(fs.Args(), *jsonErrors)
	if !ok {
		os.Exit(1)
	}
	fmt.Printf("%s %d file(s) verified\n", green("✓"), len(fs.Args()))
}

func cmdBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	jsonErrors := fs.Bool("json-errors", false, "Render diagnostics as JSON")
	output := fs.String("o", "", "Output file (default: stdout)")
	fs.Parse(args)

	mod, ok := parseAndVerify(fs.Args(), *jsonErrors)
	if !ok {
		os.Exit(1)
	}

	text := iltext.Serialize(mod)
	if *output == "" {
		fmt.Print(text)
		return
	}
	if err := os.WriteFile(*output, []byte(text), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot write %s: %v\n", red("Error"), *output, err)
		os.Exit(1)
	}
	fmt.Printf("%s wrote %s\n", green("✓"), *output)
}

func cmdOpt(args []string) {
	fs := flag.NewFlagSet("opt", flag.ExitOnError)
	jsonErrors := fs.Bool("json-errors", false, "Render diagnostics as JSON")
	emitIL := fs.Bool("emit-il", false, "Print the optimized module's textual IL")
	fs.Parse(args)

	mod, ok := parseAndVerify(fs.Args(), *jsonErrors)
	if !ok {
		os.Exit(1)
	}

	names, err := rtname.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: loading runtime name catalog: %v\n", red("Error"), err)
		os.Exit(1)
	}

	var totalPromoted, totalLoads, totalStores, totalFolded int
	for _, fn := range mod.Funcs {
		mstats := mem2reg.Run(fn)
		cstats := constfold.Run(fn, names)
		totalPromoted += mstats.PromotedSlots
		totalLoads += mstats.EliminatedLoads
		totalStores += mstats.EliminatedStores
		totalFolded += cstats.Folded
	}

	fmt.Printf("%s optimization summary:\n", cyan("→"))
	fmt.Printf("  mem2reg: %d slot(s) promoted, %d load(s) and %d store(s) eliminated\n",
		totalPromoted, totalLoads, totalStores)
	fmt.Printf("  constfold: %d call(s) folded\n", totalFolded)

	if *emitIL {
		fmt.Print(iltext.Serialize(mod))
	}
}

func cmdRepl(args []string) {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	entry := fs.String("entry", "main", "Entry function to debug")
	fs.Parse(args)

	var mod *il.Module
	if fs.NArg() == 0 {
		mod = ilbuilder.New(il.Version{Major: 0, Minor: 1}).Module()
	} else {
		var ok bool
		mod, ok = parseAndVerify(fs.Args(), false)
		if !ok {
			os.Exit(1)
		}
	}

	reg := newDefaultRegistry()
	host := newDefaultHost()
	machine := vm.New(mod, host, reg, os.Stderr)

	dbg := replvm.New(machine)
	if err := dbg.Start(*entry); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
		os.Exit(1)
	}

	replvm.NewSession(dbg).Run(os.Stdout)
}

// manifestSearchPaths returns the resolved project manifest (Default() when
// none loads), whose search directories locate a bare module name passed on
// the command line (e.g. "math" resolving against viper.yaml's search_paths).
func manifestSearchPaths(dir string) *manifest.Manifest {
	m, err := manifest.LoadFromDir(dir)
	if err != nil {
		return manifest.Default()
	}
	return m
}

// resolveInputs expands bare module names against the project manifest's
// search paths, leaving absolute/relative paths that already resolve
// untouched; the result is sorted so link output order is deterministic
// regardless of command-line argument order.
func resolveInputs(raw []string) []string {
	m := manifestSearchPaths(".")
	out := make([]string, len(raw))
	for i, r := range raw {
		out[i] = m.ResolveSearchPath(r)
	}
	sort.Strings(out)
	return out
}
