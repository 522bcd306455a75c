package coach

import (
	"regexp"
	"strings"
)

var (
	bracketExpr = regexp.MustCompile(`\[\s*([^\]]+?)\s*\]`)
	parenExpr   = regexp.MustCompile(`\(\s*([^)]+?)\s*\)`)

	inlineMathChars  = regexp.MustCompile(`^[A-Za-z0-9\s=+\-*/^_\\{}.]+$`)
	singleLetterExpr = regexp.MustCompile(`^[A-Za-z]$`)
)

// displayMathTokens mark bracketed text that is an equation rather than prose.
var displayMathTokens = []string{"=", "^", `\sqrt`, `\frac`, "+", "-", "*", "/", `\`, "_"}

// postprocessMath rewrites loosely delimited equations into markdown math.
// Models frequently emit `[ a^2 + b^2 = c^2 ]` and `( a = 5 )` instead of
// dollar-delimited LaTeX; this converts the former to display math and the
// latter to inline math, leaving ordinary prose untouched.
func postprocessMath(text string) string {
	if text == "" {
		return text
	}

	out := bracketExpr.ReplaceAllStringFunc(text, func(match string) string {
		inner := strings.TrimSpace(bracketExpr.FindStringSubmatch(match)[1])
		if inner == "" {
			return match
		}
		if strings.HasPrefix(inner, "$$") && strings.HasSuffix(inner, "$$") {
			return match
		}
		for _, tok := range displayMathTokens {
			if strings.Contains(inner, tok) {
				return "\n\n$$\n" + inner + "\n$$\n\n"
			}
		}
		return match
	})

	out = parenExpr.ReplaceAllStringFunc(out, func(match string) string {
		inner := strings.TrimSpace(parenExpr.FindStringSubmatch(match)[1])
		if inner == "" || len(inner) > 40 {
			return match
		}
		if !inlineMathChars.MatchString(inner) {
			return match
		}
		if !strings.ContainsAny(inner, `=^\_`) && !singleLetterExpr.MatchString(inner) {
			return match
		}
		return "$" + inner + "$"
	})

	return out
}
