package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyntaxCheckerValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "simple assignment",
			input: `x = 1`,
		},
		{
			name:  "function definition",
			input: "def f():\n    return 1\n",
		},
		{
			name: "full scene",
			input: `from manim import *

class SolutionScene(Scene):
    def construct(self):
        circle = Circle(radius=1)
        self.play(Create(circle))
        self.wait(2)
`,
		},
	}

	checker := NewSyntaxChecker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, detail := checker.Check(tt.input)
			assert.True(t, ok, "expected valid syntax, got: %s", detail)
			assert.Empty(t, detail)
		})
	}
}

func TestSyntaxCheckerInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "missing colon",
			input: "if True\n    pass",
		},
		{
			name:  "unclosed parenthesis",
			input: "y = (",
		},
		{
			name:  "double assignment operator",
			input: "x = = 5",
		},
	}

	checker := NewSyntaxChecker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, detail := checker.Check(tt.input)
			assert.False(t, ok)
			assert.Contains(t, detail, "syntax error")
		})
	}
}

func TestSyntaxCheckerReportsLine(t *testing.T) {
	checker := NewSyntaxChecker()
	ok, detail := checker.Check("x = 1\ny = (")
	assert.False(t, ok)
	assert.Contains(t, detail, "line 2")
}

// The parser is reused across requests; a failed parse must not poison the
// next one.
func TestSyntaxCheckerReuse(t *testing.T) {
	checker := NewSyntaxChecker()

	ok, _ := checker.Check("x = 1")
	assert.True(t, ok)

	ok, _ = checker.Check("x = = 5")
	assert.False(t, ok)

	ok, _ = checker.Check("y = 2")
	assert.True(t, ok)
}
