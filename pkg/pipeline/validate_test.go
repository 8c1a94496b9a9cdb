package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCompleteness(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		ok      bool
		message string
	}{
		{
			name:  "balanced script",
			input: `self.play(Create(Circle(radius=1)))`,
			ok:    true,
		},
		{
			name:    "truncated call",
			input:   `self.play(Create(circle)`,
			ok:      false,
			message: "unbalanced parentheses: 2 open, 1 close",
		},
		{
			name:    "unclosed index",
			input:   `eq[0] = values[`,
			ok:      false,
			message: "unbalanced brackets: 2 open, 1 close",
		},
		{
			name:    "unclosed dict",
			input:   `labels = {"a": 1`,
			ok:      false,
			message: "unbalanced braces: 1 open, 0 close",
		},
		{
			name:    "parentheses reported before braces",
			input:   `f({`,
			ok:      false,
			message: "unbalanced parentheses: 1 open, 0 close",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := CheckCompleteness(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.message, msg)
		})
	}
}

func TestCheckStructure(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		ok      bool
		missing []string
	}{
		{
			name: "complete script",
			input: `from manim import *

class SolutionScene(Scene):
    def construct(self):
        self.play(Create(Circle()))
`,
			ok: true,
		},
		{
			name: "construct with extra parameters",
			input: `from manim import *

class SolutionScene(Scene):
    def construct(self, **kwargs):
        self.play(FadeIn(dot))
`,
			ok: true,
		},
		{
			name: "static scene counts as animation",
			input: `from manim import *

class SolutionScene(Scene):
    def construct(self):
        self.add(Circle())
`,
			ok: true,
		},
		{
			name: "missing import",
			input: `class SolutionScene(Scene):
    def construct(self):
        self.play(Create(Circle()))
`,
			ok:      false,
			missing: []string{"missing manim import"},
		},
		{
			name: "missing scene class",
			input: `from manim import *

def construct(self):
    self.play(Create(Circle()))
`,
			ok:      false,
			missing: []string{"missing Scene class"},
		},
		{
			name: "missing construct method",
			input: `from manim import *

class SolutionScene(Scene):
    def build(self):
        self.play(FadeIn(dot))
`,
			ok:      false,
			missing: []string{"missing construct() method"},
		},
		{
			name: "missing animation calls",
			input: `from manim import *

class SolutionScene(Scene):
    def construct(self):
        circle = Circle()
`,
			ok:      false,
			missing: []string{"missing animation code (self.play/wait/add)"},
		},
		{
			name:  "nothing recognizable",
			input: `print('hello')`,
			ok:    false,
			missing: []string{
				"missing manim import",
				"missing Scene class",
				"missing construct() method",
				"missing animation code (self.play/wait/add)",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, missing := CheckStructure(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.missing, missing)
		})
	}
}
