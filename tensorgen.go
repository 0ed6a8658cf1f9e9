// Package tensorgen is the public entry point of the compiler: given one
// equation string, Compile runs every analysis phase (spec.md components
// A-G) and returns a Kernel the caller can run forward and, for equations
// that allocate a fresh output, differentiate in reverse.
package tensorgen

import (
	"fmt"
	"regexp"
	"strings"

	"tensorgen/internal/alloc"
	"tensorgen/internal/analyzer"
	"tensorgen/internal/ast"
	"tensorgen/internal/eval"
	tgerrors "tensorgen/internal/errors"
	"tensorgen/internal/grad"
	"tensorgen/internal/hooks"
	"tensorgen/internal/kernel"
	"tensorgen/internal/options"
	"tensorgen/internal/parser"
	"tensorgen/internal/ranges"
	"tensorgen/internal/store"
	"tensorgen/internal/tensor"
	"tensorgen/internal/threading"
)

// compileState is the mutable configuration an Option mutates before
// Compile runs the pipeline; it is discarded once Compile returns. err
// records the first out-of-domain value an Option constructor rejected
// (spec.md 4.A: "fails with a user-facing message on ... invalid values"),
// checked once every Option has run rather than threaded through each
// constructor's return.
type compileState struct {
	opts       options.Options
	allocCaps  alloc.Capabilities
	kernelCaps kernel.Capabilities
	hookCaps   hooks.Capabilities
	err        error
}

func (c *compileState) fail(option string, value any) {
	if c.err == nil {
		c.err = options.IllegalValue(option, value)
	}
}

// Option configures one call to Compile, the Go-native realization of
// spec.md 4.A's "heterogeneous argument list" (functional options rather
// than a single positional-args slice the parser classifies at runtime,
// per SPEC_FULL.md §6's documented deviation).
type Option func(*compileState)

// Verbose requests a Store dump via Kernel.VerboseDump, spec.md 4.A's
// `verbose` option.
func Verbose(on bool) Option {
	return func(c *compileState) { c.opts.Verbose = on }
}

// Threads enables threading with the given minimum work size per split;
// 0 means auto (derive the threshold from the equation's cost estimate,
// spec.md 4.E's `block_threshold = BLOCK_BASE ÷ cost`). minWork must be a
// non-negative integer (spec.md 4.A: "threads: bool or positive integer").
func Threads(minWork int) Option {
	return func(c *compileState) {
		if minWork < 0 {
			c.fail("threads", minWork)
			return
		}
		c.opts.Threads = options.Threads{Enabled: true, MinWork: minWork}
	}
}

// NoThreads disables the threading split entirely.
func NoThreads() Option {
	return func(c *compileState) { c.opts.Threads = options.Threads{Enabled: false} }
}

// Grad selects the reverse-mode differentiation strategy, spec.md 4.A's
// `grad` option: `false | symbolic | dual`.
func Grad(mode options.GradMode) Option {
	return func(c *compileState) {
		switch mode {
		case options.GradOff, options.GradSymbolic, options.GradDual:
			c.opts.Grad = mode
		default:
			c.fail("grad", mode)
		}
	}
}

// AVX enables the vectorized specialization with the given unroll factor;
// 0 means "use the synthesizer's default." unroll must be non-negative
// (spec.md 4.A: "avx: bool or positive integer").
func AVX(unroll int) Option {
	return func(c *compileState) {
		if unroll < 0 {
			c.fail("avx", unroll)
			return
		}
		c.opts.AVX = options.AVX{Enabled: true, Unroll: unroll}
	}
}

// NoAVX disables the vectorized specialization.
func NoAVX() Option {
	return func(c *compileState) { c.opts.AVX = options.AVX{Enabled: false} }
}

// CUDA sets the GPU block size; 0 disables the device specialization.
// blockSize must be non-negative (spec.md 4.A: "cuda: non-negative integer").
func CUDA(blockSize int) Option {
	return func(c *compileState) {
		if blockSize < 0 {
			c.fail("cuda", blockSize)
			return
		}
		c.opts.CUDA = blockSize
	}
}

// WithRange supplies an extra range declaration `index ∈ [lo, hi)`, usable
// whether or not the index appears as a bare symbol anywhere on the RHS
// (spec.md 6: "extra range declarations ... placed anywhere in the call").
func WithRange(index string, lo, hi int64) Option {
	return func(c *compileState) {
		c.opts.Ranges = append(c.opts.Ranges, &ast.RangeDecl{
			Index: index,
			Lo:    &ast.IntLit{Value: lo},
			Hi:    &ast.IntLit{Value: hi},
		})
	}
}

// EnableAVXBackend marks the vectorization backend as visible to the
// caller (spec.md 9 Design Note: "explicit feature flags set at driver
// construction" rather than reflection over the import graph).
func EnableAVXBackend() Option {
	return func(c *compileState) { c.kernelCaps.AVXVisible = true }
}

// EnableGPUBackend marks the GPU kernel facility as visible to the caller.
func EnableGPUBackend() Option {
	return func(c *compileState) { c.kernelCaps.GPUVisible = true }
}

// EnableOffsetArrays marks the host's offset-array facility as visible,
// suppressing the allocator's "assert axis starts at 1" fragments (spec.md
// 4.D.3). Go slices are always zero-origin, so this is a documentation
// toggle only: no code path in this module provides real offset storage.
func EnableOffsetArrays() Option {
	return func(c *compileState) { c.allocCaps.OffsetArrays = true }
}

// EnableAdjointFramework, EnableTrackedFramework and EnableDiffRuleFramework
// mark the three AD-framework registration idioms of spec.md 4.G as
// visible to the caller.
func EnableAdjointFramework() Option {
	return func(c *compileState) { c.hookCaps.AdjointFramework = true }
}

func EnableTrackedFramework() Option {
	return func(c *compileState) { c.hookCaps.TrackedFramework = true }
}

func EnableDiffRuleFramework() Option {
	return func(c *compileState) { c.hookCaps.DiffRuleFramework = true }
}

// SetDefaults updates the process-wide option defaults every later Compile
// call snapshots from, the explicit realization of spec.md 4.A's "call
// with no equation updates defaults" (spec.md 9 Design Note).
func SetDefaults(opts ...Option) error {
	c := &compileState{opts: options.Snapshot()}
	for _, o := range opts {
		o(c)
	}
	if c.err != nil {
		return c.err
	}
	options.SetDefaults(c.opts)
	return nil
}

// Kernel is the compiled form of one equation: the synthesized forward
// program, its optional gradient companion, and everything needed to run
// either against concrete tensor.Array/Scalar arguments.
type Kernel struct {
	st          *store.Store
	plan        *alloc.Plan
	fwd         *kernel.Program
	gradient    *grad.Gradient
	threader    *threading.Threader
	fragments   []hooks.Fragment
	opts        options.Options
	verboseDump string
}

// Compile parses, analyzes, range-solves, plans allocation (components
// A-D), synthesizes the forward loop nest (E), its gradient companion (F),
// and the backend registration fragments (G), in that order.
func Compile(equation string, opts ...Option) (*Kernel, error) {
	cs := &compileState{opts: options.Snapshot()}
	for _, o := range opts {
		o(cs)
	}
	if cs.err != nil {
		return nil, cs.err
	}

	eq, err := parser.New(equation).ParseEquation()
	if err != nil {
		return nil, err
	}

	st, err := analyzer.Analyze(eq)
	if err != nil {
		return nil, err
	}

	if err := applyRangeDecls(st, cs.opts.Ranges); err != nil {
		return nil, err
	}

	if err := ranges.Solve(st); err != nil {
		return nil, err
	}

	var plan *alloc.Plan
	if st.Flags.Has(store.NewArray) {
		plan, err = alloc.Plan(st, cs.allocCaps)
		if err != nil {
			return nil, err
		}
	}

	kcaps := kernel.Capabilities{
		AVXVisible:  cs.kernelCaps.AVXVisible,
		GPUVisible:  cs.kernelCaps.GPUVisible,
		AVXUnroll:   avxUnroll(cs.opts.AVX),
		CUDAEnabled: cs.opts.CUDA > 0,
	}
	fwd := kernel.Synthesize(st, kcaps)

	var g *grad.Gradient
	if cs.opts.Grad != options.GradOff {
		g, err = grad.Synthesize(st, fwd, gradMode(cs.opts.Grad))
		if err != nil {
			return nil, err
		}
	}

	var bwdFingerprint string
	if g != nil {
		bwdFingerprint = g.Fingerprint()
	}
	frags := hooks.Register(fwd, bwdFingerprint, cs.hookCaps)

	k := &Kernel{
		st:        st,
		plan:      plan,
		fwd:       fwd,
		gradient:  g,
		threader:  &threading.Threader{Enabled: cs.opts.Threads.Enabled, MinWork: cs.opts.Threads.MinWork},
		fragments: frags,
		opts:      cs.opts,
	}
	if cs.opts.Verbose {
		k.verboseDump = st.Dump()
	}
	return k, nil
}

func avxUnroll(a options.AVX) int {
	if !a.Enabled {
		return 0
	}
	if a.Unroll > 0 {
		return a.Unroll
	}
	return 4
}

func gradMode(m options.GradMode) grad.Mode {
	if m == options.GradDual {
		return grad.Dual
	}
	return grad.Symbolic
}

// applyRangeDecls folds call-site range declarations into the Store's
// constraint table, evaluated as literal bounds (spec.md 6: "i ∈ 1:N").
func applyRangeDecls(st *store.Store, decls []*ast.RangeDecl) error {
	env := eval.NewEnv()
	for _, d := range decls {
		lo, err := eval.Eval(d.Lo, env)
		if err != nil {
			return fmt.Errorf("tensorgen: range declaration for %s: %w", d.Index, err)
		}
		hi, err := eval.Eval(d.Hi, env)
		if err != nil {
			return fmt.Errorf("tensorgen: range declaration for %s: %w", d.Index, err)
		}
		st.AddConstraint(d.Index, store.RangeExpr{IsLiteral: true, Lo: int64(lo), Hi: int64(hi)})
	}
	return nil
}

// Source renders the synthesized forward program as readable Go source
// text (spec.md 4.E: the closest analogue to "emits a callable").
func (k *Kernel) Source() string { return kernel.Print(k.fwd) }

// GradSource renders the gradient companion, or "" if none was
// synthesized (nograd was raised, or grad was left at its default off).
func (k *Kernel) GradSource() string {
	if k.gradient == nil {
		return ""
	}
	return grad.Print(k.gradient)
}

// VerboseDump returns the Store dump requested by Verbose(true), or "" if
// verbose wasn't requested.
func (k *Kernel) VerboseDump() string { return k.verboseDump }

// HookFragments returns the backend registration fragments component G
// produced, one per AD framework capability enabled at Compile time.
func (k *Kernel) HookFragments() []hooks.Fragment { return k.fragments }

// Forward runs the equation for an allocating (`:=`) equation, returning
// the freshly allocated (and fully computed) output array.
func (k *Kernel) Forward(args ...tensor.Value) (*tensor.Array, error) {
	if !k.st.Flags.Has(store.NewArray) {
		return nil, fmt.Errorf("tensorgen: equation does not allocate an output; use ForwardInto")
	}
	return k.run(nil, args)
}

// ForwardInto runs the equation for an `=` (overwrite) or `+=`
// (accumulate) equation against a caller-supplied output array.
func (k *Kernel) ForwardInto(z *tensor.Array, args ...tensor.Value) (*tensor.Array, error) {
	if k.st.Flags.Has(store.NewArray) {
		return nil, fmt.Errorf("tensorgen: equation allocates its own output; use Forward")
	}
	if z == nil {
		return nil, fmt.Errorf("tensorgen: ForwardInto requires a non-nil target array")
	}
	return k.run(z, args)
}

func (k *Kernel) run(z *tensor.Array, values []tensor.Value) (*tensor.Array, error) {
	kargs, err := bindArgs(k.st, values)
	if err != nil {
		return nil, err
	}
	if err := checkPreamble(k.st, kargs); err != nil {
		return nil, err
	}
	if err := kernel.BindAxisLengths(k.fwd, kargs); err != nil {
		return nil, err
	}

	if z == nil {
		z, err = materialize(k.st, k.plan, k.fwd)
		if err != nil {
			return nil, err
		}
	}

	if err := k.threader.Run(k.st, k.fwd, z, kargs); err != nil {
		return nil, err
	}
	return z, nil
}

// Backward runs the gradient companion and returns one gradient array per
// RHS array argument, in the same order Forward/ForwardInto expect them.
// It fails if no gradient was synthesized for this equation.
func (k *Kernel) Backward(dZ *tensor.Array, args ...tensor.Value) ([]*tensor.Array, error) {
	if k.gradient == nil {
		return nil, fmt.Errorf("tensorgen: no gradient was synthesized for this equation (nograd, or grad was left off)")
	}
	kargs, err := bindArgs(k.st, args)
	if err != nil {
		return nil, err
	}
	if err := kernel.BindAxisLengths(k.fwd, kargs); err != nil {
		return nil, err
	}
	byName, err := k.gradient.Compute(dZ, kargs)
	if err != nil {
		return nil, err
	}
	out := make([]*tensor.Array, len(k.st.Arrays))
	for i, name := range k.st.Arrays {
		out[i] = byName[name]
	}
	return out, nil
}

// bindArgs matches the caller's positional values against the Store's
// RHS argument order: every array name (first-appearance order), then
// every lifted scalar name, mirroring spec.md 4.E's driver signature
// `create(As…, scalars…)`.
func bindArgs(st *store.Store, values []tensor.Value) (kernel.Args, error) {
	ka := kernel.Args{Arrays: map[string]*tensor.Array{}, Scalar: map[string]float64{}}
	want := len(st.Arrays) + len(st.Scalars)
	if len(values) != want {
		return ka, fmt.Errorf("tensorgen: equation takes %d argument(s) (%d array(s), %d scalar(s)), got %d",
			want, len(st.Arrays), len(st.Scalars), len(values))
	}

	i := 0
	for _, name := range st.Arrays {
		arr, ok := values[i].(*tensor.Array)
		if !ok {
			return ka, fmt.Errorf("tensorgen: argument %d (%s) must be a *tensor.Array", i, name)
		}
		ka.Arrays[name] = arr
		i++
	}
	for _, name := range st.Scalars {
		switch v := values[i].(type) {
		case tensor.Scalar:
			ka.Scalar[name] = float64(v)
		case *tensor.Array:
			val, err := v.At()
			if err != nil {
				return ka, fmt.Errorf("tensorgen: argument %d (%s): %w", i, name, err)
			}
			ka.Scalar[name] = val
		default:
			return ka, fmt.Errorf("tensorgen: argument %d (%s) must be a tensor.Scalar", i, name)
		}
		i++
	}
	return ka, nil
}

var (
	rankAssertRe = regexp.MustCompile(`^assert rank\((\w+)\) == (\d+)$`)
	axisAssertRe = regexp.MustCompile(`^assert axis\((\w+),(\d+)\) == axis\((\w+),(\d+)\)$`)
)

// checkPreamble replays the textual preamble fragments the analyzer and
// range solver recorded in st.OutPre as real runtime checks — the
// "rank-mismatch" and "range-disagreement" diagnostics of spec.md 7 are
// emitted here, against the caller's actual argument shapes, rather than
// left as unexecuted documentation.
func checkPreamble(st *store.Store, kargs kernel.Args) error {
	for _, frag := range st.OutPre {
		if m := rankAssertRe.FindStringSubmatch(frag); m != nil {
			arr, ok := kargs.Arrays[m[1]]
			if !ok {
				continue // a lifted temporary the caller never binds directly
			}
			want := atoiMust(m[2])
			if arr.Rank() != want {
				return &tgerrors.CompilerError{
					Level:   tgerrors.Error,
					Code:    tgerrors.ECRankMismatch,
					Message: fmt.Sprintf("array %s has rank %d, equation requires rank %d", m[1], arr.Rank(), want),
				}
			}
			continue
		}
		if m := axisAssertRe.FindStringSubmatch(frag); m != nil {
			a, aOK := kargs.Arrays[m[1]]
			b, bOK := kargs.Arrays[m[3]]
			if !aOK || !bOK {
				continue
			}
			aAxis, bAxis := atoiMust(m[2]), atoiMust(m[4])
			aLen, err := a.AxisLen(aAxis)
			if err != nil {
				return err
			}
			bLen, err := b.AxisLen(bAxis)
			if err != nil {
				return err
			}
			if aLen != bLen {
				return &tgerrors.CompilerError{
					Level: tgerrors.Error,
					Code:  tgerrors.ECRangeDisagreement,
					Message: fmt.Sprintf("axis(%s,%d)=%d disagrees with axis(%s,%d)=%d",
						m[1], aAxis, aLen, m[3], bAxis, bLen),
				}
			}
		}
	}
	return nil
}

func atoiMust(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// materialize realizes the allocator's symbolic Plan (spec.md 4.D) as a
// concrete tensor.Array: Plan.OutAxes names either "1:1" (a literal-pinned
// unit axis) or "axis_<symbol>", resolved against prog.AxisDefs once
// BindAxisLengths has made every axis concrete.
func materialize(st *store.Store, plan *alloc.Plan, prog *kernel.Program) (*tensor.Array, error) {
	shape := make([]int, len(plan.OutAxes))
	names := make([]string, len(plan.OutAxes))
	for i, ax := range plan.OutAxes {
		if ax == "1:1" {
			shape[i] = 1
			continue
		}
		idx := strings.TrimPrefix(ax, "axis_")
		def, ok := prog.AxisDefs[idx]
		if !ok || !def.Range.IsLiteral {
			return nil, fmt.Errorf("tensorgen: axis %s was never bound to a concrete length", ax)
		}
		shape[i] = int(def.Range.Hi - def.Range.Lo)
		names[i] = st.LeftNames[idx]
	}

	if len(st.LeftNames) > 0 {
		return tensor.NewNamedArray(names, shape...)
	}
	return tensor.NewArray(shape...)
}
