package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoubt/manim-tutor-api/pkg/pipeline/finitestate"
)

type fakeGenerator struct {
	response    string
	strict      string
	generateErr error
	strictErr   error

	generateCalls int
	strictCalls   int
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	f.generateCalls++
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.response, nil
}

func (f *fakeGenerator) GenerateStrict(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	f.strictCalls++
	if f.strictErr != nil {
		return "", f.strictErr
	}
	return f.strict, nil
}

func fenced(script string) string {
	return "```python\n" + script + "\n```"
}

const validScene = `from manim import *

class SolutionScene(Scene):
    def construct(self):
        circle = Circle(radius=1)
        self.play(Create(circle))
        self.wait(2)`

func TestPipelineRunHappyPath(t *testing.T) {
	gen := &fakeGenerator{response: fenced(validScene)}
	p := New(gen, DefaultComplexityLimits())

	result, err := p.Run(context.Background(), "How fast does the ball fall?", nil, "")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, validScene, result.Script)
	assert.Equal(t, "SolutionScene", result.EntryPoint)
	assert.Equal(t, finitestate.StateReady, result.State)
	assert.False(t, result.Retried)
	assert.False(t, result.UsedFallback)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 1, gen.generateCalls)
	assert.Equal(t, 0, gen.strictCalls)
}

func TestPipelineRunRetriesOnceWhenNoCode(t *testing.T) {
	gen := &fakeGenerator{
		response: "I am sorry, I cannot describe this image.",
		strict:   fenced(validScene),
	}
	p := New(gen, DefaultComplexityLimits())

	result, err := p.Run(context.Background(), "question", nil, "")
	require.NoError(t, err)

	assert.True(t, result.Retried)
	assert.Equal(t, finitestate.StateReady, result.State)
	assert.Equal(t, 1, gen.generateCalls)
	assert.Equal(t, 1, gen.strictCalls, "the strict prompt is used exactly once")
}

func TestPipelineRunNoCodeAfterRetry(t *testing.T) {
	gen := &fakeGenerator{
		response: "no code here",
		strict:   "still no code",
	}
	p := New(gen, DefaultComplexityLimits())

	result, err := p.Run(context.Background(), "question", nil, "")
	assert.ErrorIs(t, err, ErrNoCodeFound)
	assert.Nil(t, result)
	assert.Equal(t, 1, gen.strictCalls)
}

func TestPipelineRunGenerationError(t *testing.T) {
	boom := errors.New("model quota exceeded")
	gen := &fakeGenerator{generateErr: boom}
	p := New(gen, DefaultComplexityLimits())

	result, err := p.Run(context.Background(), "question", nil, "")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, result)
}

func TestPipelineRunStrictGenerationError(t *testing.T) {
	boom := errors.New("model unavailable")
	gen := &fakeGenerator{
		response:  "nothing usable",
		strictErr: boom,
	}
	p := New(gen, DefaultComplexityLimits())

	_, err := p.Run(context.Background(), "question", nil, "")
	assert.ErrorIs(t, err, boom)
}

func TestPipelineRunSyntaxFailure(t *testing.T) {
	gen := &fakeGenerator{response: fenced(`from manim import *

class SolutionScene(Scene):
    def construct(self):
        x = = 5
        self.play(Create(circle))`)}
	p := New(gen, DefaultComplexityLimits())

	result, err := p.Run(context.Background(), "question", nil, "")
	assert.ErrorIs(t, err, ErrSyntaxInvalid)
	assert.Nil(t, result)
}

func TestPipelineRunStructureFailure(t *testing.T) {
	gen := &fakeGenerator{response: fenced(`from manim import *

class SolutionScene(Scene):
    def setup(self):
        self.play(Create(circle))`)}
	p := New(gen, DefaultComplexityLimits())

	result, err := p.Run(context.Background(), "question", nil, "")
	assert.ErrorIs(t, err, ErrStructureInvalid)
	assert.Contains(t, err.Error(), "missing construct() method")
	assert.Nil(t, result)
}

func TestPipelineRunSafetyRejection(t *testing.T) {
	gen := &fakeGenerator{response: fenced(`from manim import *

class SolutionScene(Scene):
    def construct(self):
        data = open("notes.txt").read()
        self.play(Create(circle))`)}
	p := New(gen, DefaultComplexityLimits())

	result, err := p.Run(context.Background(), "question", nil, "")
	assert.ErrorIs(t, err, ErrUnsafeScript)
	assert.Nil(t, result)
}

// Removing the only statement of a block is a repair regression: the repaired
// text no longer parses, so the pre-repair text must win.
func TestPipelineRunFallsBackWhenRepairRegresses(t *testing.T) {
	script := `from manim import *

class SolutionScene(Scene):
    def construct(self):
        if True:
            img = ImageMobject("problem.png")
        self.play(Create(Circle()))
        self.wait(1)`
	gen := &fakeGenerator{response: fenced(script)}
	p := New(gen, DefaultComplexityLimits())

	result, err := p.Run(context.Background(), "question", nil, "")
	require.NoError(t, err)

	assert.True(t, result.UsedFallback)
	assert.Equal(t, script, result.Script, "the pre-repair text continues unchanged")
	assert.Equal(t, finitestate.StateReady, result.State)
}

func TestPipelineRunWarnsWhenOverBudgetAfterSimplify(t *testing.T) {
	gen := &fakeGenerator{response: fenced(validScene)}
	p := New(gen, ComplexityLimits{MaxLines: 3})

	result, err := p.Run(context.Background(), "question", nil, "")
	require.NoError(t, err)

	assert.Equal(t, finitestate.StateReady, result.State, "budgets are advisory, the script still renders")
	assert.Equal(t, []string{"script has 7 lines, limit is 3"}, result.Warnings)
}

func TestPipelineRunSimplifiesOverBudgetScript(t *testing.T) {
	script := `from manim import *

class SolutionScene(Scene):
    def construct(self):
        # step one
        circle = Circle()
        self.play(Create(circle))
        self.wait(1)
        self.wait(2)
        # step two
        self.play(FadeOut(circle))
        self.wait(1)`
	gen := &fakeGenerator{response: fenced(script)}
	p := New(gen, ComplexityLimits{MaxLines: 9})

	result, err := p.Run(context.Background(), "question", nil, "")
	require.NoError(t, err)

	assert.Empty(t, result.Warnings, "simplification brought the script back under budget")
	assert.NotContains(t, result.Script, "# step one")
	assert.NotContains(t, result.Script, "self.wait(2)")
	assert.Contains(t, result.Script, "self.play(FadeOut(circle))")
}

func TestNeutralizeRateFuncs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "ease reference without import",
			input: `self.play(Create(c), rate_func=ease_in_sine)`,
			want:  `self.play(Create(c), rate_func=smooth)`,
		},
		{
			name:  "import present keeps references",
			input: "from manim.utils.rate_functions import ease_in_sine\nself.play(Create(c), rate_func=ease_in_sine)",
			want:  "from manim.utils.rate_functions import ease_in_sine\nself.play(Create(c), rate_func=ease_in_sine)",
		},
		{
			name:  "no references untouched",
			input: `self.play(Create(c), rate_func=linear)`,
			want:  `self.play(Create(c), rate_func=linear)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, neutralizeRateFuncs(tt.input))
		})
	}
}
