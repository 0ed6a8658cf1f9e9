package analyzer

// opCost implements spec.md 4.B.7 ("multiplication costs more than
// addition, transcendentals cost much more"), used to pick the threading
// threshold (spec.md 4.E: block_threshold = BLOCK_BASE / cost).
func opCost(op string) float64 {
	switch op {
	case "+", "-", "==", "!=", "<", "<=", ">", ">=":
		return 1
	case "*", "/":
		return 2
	case "^":
		return 3
	}
	return 1
}

var transcendentalCost = map[string]float64{
	"exp": 10, "log": 10, "sin": 10, "cos": 10, "tan": 10,
	"sqrt": 6, "pow": 6, "tanh": 12, "sigmoid": 12,
}

func callCost(name string) float64 {
	if c, ok := transcendentalCost[name]; ok {
		return c
	}
	return 2 // ordinary function call, e.g. max/min reduction helpers
}
