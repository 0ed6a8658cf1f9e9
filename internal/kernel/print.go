package kernel

import (
	"fmt"
	"strings"
)

// Print renders p as readable Go source text: the closest analogue, in a
// language with no macro system, to "emits a callable" (spec.md 4.E).
// Kernel.Source returns it, and cmd/tensorgen always prints it.
func Print(p *Program) string {
	var b strings.Builder

	fmt.Fprintf(&b, "// kernel %s (variant=%s)\n", p.Fingerprint, p.Variant)
	fmt.Fprintf(&b, "func apply_%s(z *tensor.Array, args eval.Env) error {\n", p.Fingerprint)

	indent := "\t"
	for _, idx := range p.Outer {
		fmt.Fprintf(&b, "%sfor %s := axis_%s.Lo; %s < axis_%s.Hi; %s++ {\n", indent, idx, idx, idx, idx, idx)
		indent += "\t"
	}

	if len(p.Reduction) == 0 {
		fmt.Fprintf(&b, "%sz.Set(%s, %s)\n", indent, p.RHS.String(), leftIndexList(p))
	} else {
		fmt.Fprintf(&b, "%sacc := %s\n", indent, initExprName(p.RedFun))
		redIndent := indent
		for _, idx := range p.Reduction {
			fmt.Fprintf(&b, "%sfor %s := axis_%s.Lo; %s < axis_%s.Hi; %s++ {\n", redIndent, idx, idx, idx, idx, idx)
			redIndent += "\t"
		}
		fmt.Fprintf(&b, "%sacc = %s(acc, %s)\n", redIndent, p.RedFun, p.RHS.String())
		for range p.Reduction {
			redIndent = redIndent[:len(redIndent)-1]
			fmt.Fprintf(&b, "%s}\n", redIndent)
		}
		fmt.Fprintf(&b, "%sz.Set(acc, %s)\n", indent, leftIndexList(p))
	}

	for range p.Outer {
		indent = indent[:len(indent)-1]
		fmt.Fprintf(&b, "%s}\n", indent)
	}
	b.WriteString("\treturn nil\n}\n")
	return b.String()
}

func leftIndexList(p *Program) string {
	parts := make([]string, len(p.LeftRaw))
	for i, raw := range p.LeftRaw {
		if raw.Literal != nil {
			parts[i] = fmt.Sprintf("%d", *raw.Literal)
			continue
		}
		parts[i] = raw.Symbol
	}
	return strings.Join(parts, ", ")
}

func initExprName(redFun string) string {
	switch redFun {
	case "*":
		return "one(TYP)"
	case "max":
		return "typemin(TYP)"
	case "min":
		return "typemax(TYP)"
	default:
		return "zero(TYP)"
	}
}
