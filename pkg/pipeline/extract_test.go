package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCodeFencedBlocks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name: "python fence with surrounding prose",
			input: "Here is the animation you asked for:\n\n" +
				"```python\nfrom manim import *\n\nclass PhysicsSolution(Scene):\n    def construct(self):\n        circle = Circle()\n        self.play(Create(circle))\n```\n\n" +
				"Hope this helps!",
			want: "from manim import *\n\nclass PhysicsSolution(Scene):\n    def construct(self):\n        circle = Circle()\n        self.play(Create(circle))",
		},
		{
			name:  "py fence",
			input: "```py\nfrom manim import *\n\nclass SolutionScene(Scene):\n    def construct(self):\n        self.wait(1)\n```",
			want:  "from manim import *\n\nclass SolutionScene(Scene):\n    def construct(self):\n        self.wait(1)",
		},
		{
			name:  "anonymous fence",
			input: "```\nfrom manim import *\n\nclass SolutionScene(Scene):\n    def construct(self):\n        self.wait(1)\n```",
			want:  "from manim import *\n\nclass SolutionScene(Scene):\n    def construct(self):\n        self.wait(1)",
		},
		{
			name: "first block without manim skipped",
			input: "```python\nprint('setup')\n```\n\n" +
				"```python\nfrom manim import *\n\nclass SolutionScene(Scene):\n    def construct(self):\n        self.wait(1)\n```",
			want: "from manim import *\n\nclass SolutionScene(Scene):\n    def construct(self):\n        self.wait(1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ExtractCode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestExtractCodeImportSlice(t *testing.T) {
	input := `The following script draws the diagram.

from manim import *

class SolutionScene(Scene):
    def construct(self):
        square = Square()
        self.play(FadeIn(square))`

	want := `from manim import *

class SolutionScene(Scene):
    def construct(self):
        square = Square()
        self.play(FadeIn(square))`

	code, err := ExtractCode(input)
	require.NoError(t, err)
	assert.Equal(t, want, code, "everything before the import line is prose and must be dropped")
}

func TestExtractCodeClassSliceSynthesizesImport(t *testing.T) {
	classBlock := `class PhysicsSolution(Scene):
    def construct(self):
        label = Text("Force")
        self.play(FadeIn(label))`

	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "bare class block",
			input: classBlock,
		},
		{
			name:  "class block after prose",
			input: "Here is the scene class you need:\n\n" + classBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ExtractCode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, "from manim import *\n\n"+classBlock, code, "a missing import line is synthesized")
		})
	}
}

func TestExtractCodeAggressiveSlice(t *testing.T) {
	input := "Start by defining the construct method.\n\n" +
		"class Foo:\n    def construct(self):\n        self.wait(1)\n\n\n" +
		"That is all you need."

	code, err := ExtractCode(input)
	require.NoError(t, err)
	assert.Equal(t, "class Foo:\n    def construct(self):\n        self.wait(1)", code,
		"the slice starts at the earliest marker and stops at the first blank-line run")
}

func TestExtractCodeNoCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "plain refusal",
			input: "I cannot generate an animation for this image.",
		},
		{
			name:  "fenced block without manim",
			input: "```python\nprint('hello')\n```",
		},
		{
			name:  "empty response",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ExtractCode(tt.input)
			assert.ErrorIs(t, err, ErrNoCodeFound)
			assert.Empty(t, code)
		})
	}
}
