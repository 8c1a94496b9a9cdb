package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComplexityLimitsAssess(t *testing.T) {
	tests := []struct {
		name    string
		limits  ComplexityLimits
		input   string
		ok      bool
		reasons []string
	}{
		{
			name:   "within every budget",
			limits: DefaultComplexityLimits(),
			input:  "from manim import *\n\nclass S(Scene):\n    def construct(self):\n        self.wait(1)\n",
			ok:     true,
		},
		{
			name:    "too many characters",
			limits:  ComplexityLimits{MaxChars: 10},
			input:   strings.Repeat("a", 20),
			ok:      false,
			reasons: []string{"script length 20 exceeds 10 characters"},
		},
		{
			name:    "too many lines",
			limits:  ComplexityLimits{MaxLines: 2},
			input:   "a = 1\nb = 2\nc = 3",
			ok:      false,
			reasons: []string{"script has 3 lines, limit is 2"},
		},
		{
			name:    "too many text calls",
			limits:  ComplexityLimits{MaxTextCalls: 2},
			input:   "t1 = Text(\"a\")\nt2 = Text(\"b\")\neq = MathTex(\"c\")\n",
			ok:      false,
			reasons: []string{"script has 3 text-producing calls, limit is 2"},
		},
		{
			name:   "zero limits disable every check",
			limits: ComplexityLimits{},
			input:  strings.Repeat("Text(\n", 500),
			ok:     true,
		},
		{
			name:   "all budgets exceeded in order",
			limits: ComplexityLimits{MaxChars: 10, MaxLines: 1, MaxTextCalls: 1},
			input:  "Text(\nText(\nText(",
			ok:     false,
			reasons: []string{
				"script length 17 exceeds 10 characters",
				"script has 3 lines, limit is 1",
				"script has 3 text-producing calls, limit is 1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reasons := tt.limits.Assess(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reasons, reasons)
		})
	}
}

func TestDefaultComplexityLimits(t *testing.T) {
	limits := DefaultComplexityLimits()
	assert.Equal(t, 8000, limits.MaxChars)
	assert.Equal(t, 220, limits.MaxLines)
	assert.Equal(t, 15, limits.MaxTextCalls)
}

func TestSimplifyCollapsesWaitRuns(t *testing.T) {
	input := `        self.play(Create(c))
        self.wait(1)
        self.wait(2)
        self.wait(3)
        self.play(FadeOut(c))
        self.wait(1)`

	want := `        self.play(Create(c))
        self.wait(1)
        self.play(FadeOut(c))
        self.wait(1)`

	assert.Equal(t, want, Simplify(input), "only the first wait of a run survives")
}

func TestSimplifyDropsCommentsButKeepsSectionMarkers(t *testing.T) {
	input := `# setup the stage
#--- Section 1: Setup ---
circle = Circle()
# draw it now
self.play(Create(circle))  # trailing comments stay
#    --- finale ---`

	want := `#--- Section 1: Setup ---
circle = Circle()
self.play(Create(circle))  # trailing comments stay
#    --- finale ---`

	assert.Equal(t, want, Simplify(input))
}

func TestSimplifyCollapsesBlankRuns(t *testing.T) {
	assert.Equal(t, "a = 1\n\nb = 2", Simplify("a = 1\n\n\n\nb = 2"))
}
