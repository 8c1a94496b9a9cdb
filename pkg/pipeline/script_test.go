package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScriptEntryPointName(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "class inheriting Scene",
			text: `class WaveDemo(Scene):
    def construct(self):
        pass
`,
			want: "WaveDemo",
		},
		{
			name: "class inheriting a Scene subclass",
			text: `class ZoomDemo(MovingCameraScene):
    def construct(self):
        pass
`,
			want: "ZoomDemo",
		},
		{
			name: "inheriting class wins over conventional name",
			text: `class Helper(Scene):
    pass

class SolutionScene:
    pass
`,
			want: "Helper",
		},
		{
			name: "conventional physics name without bases",
			text: `class PhysicsSolution:
    def construct(self):
        pass
`,
			want: "PhysicsSolution",
		},
		{
			name: "conventional solution name without bases",
			text: `class SolutionScene:
    def construct(self):
        pass
`,
			want: "SolutionScene",
		},
		{
			name: "any class with Scene in its name",
			text: `class MyScene:
    def construct(self):
        pass
`,
			want: "MyScene",
		},
		{
			name: "no class at all falls back",
			text: `print('nothing here')`,
			want: FallbackEntryPoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Script{Text: tt.text}
			assert.Equal(t, tt.want, s.EntryPointName())
		})
	}
}

func TestScriptBalanced(t *testing.T) {
	ok, msg := (&Script{Text: `self.play(Create(circle)`}).Balanced()
	assert.False(t, ok)
	assert.Equal(t, "unbalanced parentheses: 2 open, 1 close", msg)

	ok, msg = (&Script{Text: `self.wait(1)`}).Balanced()
	assert.True(t, ok)
	assert.Empty(t, msg)
}
