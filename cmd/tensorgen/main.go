// Command tensorgen reads one equation (an argument or a file) plus
// command-line options, compiles it, and prints the synthesized forward
// (and, if requested, gradient) source, the ambient CLI surface spec.md's
// driver signature implies but the library package itself has no business
// owning.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	tgerrors "tensorgen/internal/errors"
	"tensorgen/internal/options"

	"tensorgen"
)

func main() {
	var (
		file    = flag.String("file", "", "read the equation from this file instead of the first argument")
		verbose = flag.Bool("verbose", false, "print the analyzer's Store dump before the synthesized source")
		grad    = flag.String("grad", "off", "gradient strategy: off, symbolic, dual")
		threads = flag.Int("threads", 0, "minimum per-split work to enable threading (0 keeps the process default)")
		avx     = flag.Int("avx", 0, "AVX unroll factor (0 disables vectorization)")
		cuda    = flag.Int("cuda", 0, "CUDA block size (0 disables the device path)")
	)
	flag.Parse()

	equation, err := readEquation(*file)
	if err != nil {
		color.Red("tensorgen: %s", err)
		os.Exit(1)
	}

	opts := []tensorgen.Option{tensorgen.Verbose(*verbose)}
	switch strings.ToLower(*grad) {
	case "symbolic":
		opts = append(opts, tensorgen.Grad(options.GradSymbolic))
	case "dual":
		opts = append(opts, tensorgen.Grad(options.GradDual))
	case "off", "":
	default:
		color.Red("tensorgen: unknown -grad value %q (want off, symbolic, or dual)", *grad)
		os.Exit(1)
	}
	if *threads > 0 {
		opts = append(opts, tensorgen.Threads(*threads))
	}
	if *avx > 0 {
		opts = append(opts, tensorgen.AVX(*avx))
	}
	if *cuda > 0 {
		opts = append(opts, tensorgen.CUDA(*cuda))
	}

	k, err := tensorgen.Compile(equation, opts...)
	if err != nil {
		reportCompileError(equation, err)
		os.Exit(1)
	}

	if dump := k.VerboseDump(); dump != "" {
		fmt.Println(dump)
		fmt.Println()
	}

	fmt.Println(k.Source())
	if src := k.GradSource(); src != "" {
		fmt.Println()
		fmt.Println(src)
	}
	for _, frag := range k.HookFragments() {
		fmt.Println()
		fmt.Printf("// %s\n%s\n", frag.Kind, frag.Source)
	}

	color.Green("ok: compiled %q", equation)
}

func readEquation(file string) (string, error) {
	if file != "" {
		src, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", file, err)
		}
		return strings.TrimSpace(string(src)), nil
	}
	args := flag.Args()
	if len(args) == 0 {
		return "", fmt.Errorf("usage: tensorgen [options] '<equation>' (or -file <path>)")
	}
	return strings.Join(args, " "), nil
}

// reportCompileError renders a *tgerrors.CompilerError with the caret-style
// Reporter when possible, falling back to the bare error text otherwise.
func reportCompileError(equation string, err error) {
	ce, ok := err.(*tgerrors.CompilerError)
	if !ok {
		color.Red("tensorgen: %s", err)
		return
	}
	reporter := tgerrors.NewReporter(equation)
	fmt.Print(reporter.Format(ce))
}
