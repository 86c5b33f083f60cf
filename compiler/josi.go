package compiler

// Particles (josi) follow a value and mark its grammatical role. Longer
// particles are tried first so that "から" is never read as "か" + "ら".
var (
	josiTwo = []string{
		"から", "まで", "より", "とは", "には", "では", "など", "だけ", "ほど", "なら",
	}
	josiOne = []string{
		"は", "を", "に", "へ", "で", "と", "が", "の", "も", "や",
	}
)

// matchJosi returns the particle at the cursor without consuming it, or "".
func matchJosi(src *Source) string {
	for _, j := range josiTwo {
		if src.HasPrefix(j) {
			return j
		}
	}
	for _, j := range josiOne {
		if src.HasPrefix(j) {
			return j
		}
	}
	return ""
}

// readJosi consumes and returns the particle at the cursor, or "".
func readJosi(src *Source) string {
	j := matchJosi(src)
	if j != "" {
		src.Take(len([]rune(j)))
	}
	return j
}

// IsJosi reports whether s is exactly one of the known particles.
func IsJosi(s string) bool {
	for _, j := range josiTwo {
		if s == j {
			return true
		}
	}
	for _, j := range josiOne {
		if s == j {
			return true
		}
	}
	return false
}
