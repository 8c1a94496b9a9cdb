package pipeline

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ComplexityLimits are the soft budgets for a candidate script. They are
// advisory: exceeding one produces a warning, never a rejection. The render
// timeout is the hard backstop.
type ComplexityLimits struct {
	MaxChars     int
	MaxLines     int
	MaxTextCalls int
}

func DefaultComplexityLimits() ComplexityLimits {
	return ComplexityLimits{
		MaxChars:     8000,
		MaxLines:     220,
		MaxTextCalls: 15,
	}
}

// Assess reports whether the script fits the budgets, with one reason per
// exceeded limit. A zero limit disables that check.
func (l ComplexityLimits) Assess(code string) (bool, []string) {
	var reasons []string
	if l.MaxChars > 0 && len(code) > l.MaxChars {
		reasons = append(reasons, fmt.Sprintf("script length %d exceeds %d characters", len(code), l.MaxChars))
	}
	lineCount := strings.Count(code, "\n") + 1
	if l.MaxLines > 0 && lineCount > l.MaxLines {
		reasons = append(reasons, fmt.Sprintf("script has %d lines, limit is %d", lineCount, l.MaxLines))
	}
	// Count("Tex(") already covers every MathTex( occurrence once.
	textCalls := strings.Count(code, "Text(") + strings.Count(code, "Tex(")
	if l.MaxTextCalls > 0 && textCalls > l.MaxTextCalls {
		reasons = append(reasons, fmt.Sprintf("script has %d text-producing calls, limit is %d", textCalls, l.MaxTextCalls))
	}
	return len(reasons) == 0, reasons
}

// Simplify applies correctness-preserving reductions: runs of consecutive
// wait calls collapse to the first, comment-only lines go away unless they
// are section separators, and blank runs re-collapse. Animation semantics
// beyond pacing are untouched.
func Simplify(code string) string {
	lines := strings.Split(code, "\n")
	kept := make([]string, 0, len(lines))
	prevWait := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		isWait := strings.HasPrefix(trimmed, "self.wait(")
		if isWait && prevWait {
			continue
		}
		if isCommentOnly(trimmed) && !isSectionMarker(trimmed) {
			continue
		}
		kept = append(kept, line)
		prevWait = isWait
	}
	out := strings.Join(kept, "\n")
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	if out != code {
		log.Debugf("simplified script from %d to %d bytes", len(code), len(out))
	}
	return out
}

func isCommentOnly(trimmed string) bool {
	return strings.HasPrefix(trimmed, "#")
}

func isSectionMarker(trimmed string) bool {
	rest := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
	return strings.HasPrefix(rest, "---")
}
