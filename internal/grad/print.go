package grad

import (
	"fmt"
	"strings"
)

// Print renders g as readable Go source text, the gradient analogue of
// kernel.Print: the closest thing to "emits a callable" for the reverse-
// mode companion a reader wants to see (returned by Kernel.GradSource, which
// cmd/tensorgen prints whenever a gradient was synthesized).
func Print(g *Gradient) string {
	var b strings.Builder

	fmt.Fprintf(&b, "// gradient %s (mode=%s)\n", g.Fingerprint(), g.mode)
	fmt.Fprintf(&b, "func grad_%s(dZ *tensor.Array, args eval.Env) map[string]*tensor.Array {\n", g.fwd.Fingerprint)

	shared := map[string]bool{}
	for _, idx := range g.st.SharedInd {
		shared[idx] = true
	}
	var sharedOrder, restOrder []string
	for _, idx := range append(append([]string(nil), g.fwd.Outer...), g.fwd.Reduction...) {
		if shared[idx] {
			sharedOrder = append(sharedOrder, idx)
		} else {
			restOrder = append(restOrder, idx)
		}
	}

	indent := "\t"
	for _, idx := range sharedOrder {
		fmt.Fprintf(&b, "%sfor %s := axis_%s.Lo; %s < axis_%s.Hi; %s++ { // shared, parallel-safe\n", indent, idx, idx, idx, idx, idx)
		indent += "\t"
	}
	for _, idx := range restOrder {
		fmt.Fprintf(&b, "%sfor %s := axis_%s.Lo; %s < axis_%s.Hi; %s++ { // non-shared, thread-local\n", indent, idx, idx, idx, idx, idx)
		indent += "\t"
	}

	fmt.Fprintf(&b, "%sseed := dZ.At(leftraw)\n", indent)
	for _, arr := range g.st.Arrays {
		switch g.mode {
		case Dual:
			fmt.Fprintf(&b, "%sd%s[inds] += seed * dual(rhs, eps_%s)\n", indent, arr, arr)
		default:
			fmt.Fprintf(&b, "%sd%s[inds] += seed * d(rhs)/d(%s[inds])\n", indent, arr, arr)
		}
	}

	for range append(sharedOrder, restOrder...) {
		indent = indent[:len(indent)-1]
		fmt.Fprintf(&b, "%s}\n", indent)
	}
	b.WriteString("\treturn dA\n}\n")
	return b.String()
}
