// pkg/llm/gemini.go

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Service holds the Gemini AI client.
type Service struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiService creates a new Gemini AI service instance tuned for code
// output: low temperature, a large output budget, and permissive safety
// settings for educational STEM content.
func NewGeminiService(apiKey, modelName string) (*Service, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.4)
	model.SetTopP(0.8)
	model.SetTopK(40)
	model.SetMaxOutputTokens(32768)
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}
	return &Service{client: client, model: model}, nil
}

// Generate asks for a Manim script visualizing the solution to the question,
// attaching the problem image when one is present. The raw response text is
// returned untouched; pulling the code out of it is the caller's concern.
func (s *Service) Generate(ctx context.Context, question string, image []byte, mimeType string) (string, error) {
	log.Debugf("Attempting to generate Manim code for question: %s", question)
	return s.generate(ctx, buildPrompt(question), image, mimeType)
}

// GenerateStrict sends the harsher code-only prompt, used once when the
// first response contained no extractable code.
func (s *Service) GenerateStrict(ctx context.Context, question string, image []byte, mimeType string) (string, error) {
	log.Debug("Retrying generation with explicit code-only request")
	return s.generate(ctx, fmt.Sprintf(strictPromptTemplate, question), image, mimeType)
}

func (s *Service) generate(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	parts := []genai.Part{genai.Text(prompt)}
	if len(image) > 0 {
		parts = append(parts, genai.ImageData(imageFormat(mimeType), image))
	}

	resp, err := s.model.GenerateContent(ctx, parts...)
	if err != nil {
		log.Errorf("Error generating content for Manim code: %v", err)
		return "", fmt.Errorf("gemini API call failed during code generation: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	log.Infof("Gemini response received: %d characters", len(text))
	log.Debugf("Response preview (first 200 chars): %s", preview(text, 200))
	return text, nil
}

// responseText joins the text parts of the first candidate, tolerating
// interleaved non-text parts.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Warn("Gemini returned no candidates or content for Manim code generation.")
		return "", fmt.Errorf("gemini API returned no content for Manim code generation")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		log.Errorf("Gemini response contains no text parts, finish reason: %v", resp.Candidates[0].FinishReason)
		return "", fmt.Errorf("gemini API returned non-text content for Manim code generation")
	}
	return sb.String(), nil
}

// imageFormat maps a MIME type like image/png to the bare format name the
// genai SDK expects.
func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(mimeType, "image/")
	if format == "" {
		return "png"
	}
	return format
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Close gracefully closes the underlying Gemini client.
// This should be called when your application is shutting down to release resources.
func (s *Service) Close() error {
	log.Info("Closing Gemini AI service client.")
	return s.client.Close()
}

func buildPrompt(question string) string {
	return promptIntro + question + promptOutro
}

const strictPromptTemplate = `CRITICAL: Your previous response did not contain valid Python code.

You MUST respond with Manim Python code ONLY.

Problem: %s

Your response must be executable Python code that starts with:
from manim import *

class SolutionScene(Scene):
    def construct(self):
        # Your animation code here

DO NOT write explanations. DO NOT write text.
ONLY Python code. Start with: from manim import *

Generate the code now:`

const promptIntro = `You are an expert Manim animator and STEM educator specializing in:
• Physics (mechanics, forces, motion, energy, waves)
• Mathematics (algebra, geometry, calculus, trigonometry)
• Probability & Statistics (combinatorics, arrangements, distributions)
• Problem-Solving (visual explanations for ANY STEM topic)

TASK: Analyze the provided image and create a Manim animation that VISUALIZES the solution step-by-step.

PROBLEM TYPES YOU MUST HANDLE WITH VISUAL ANIMATIONS:

1. PHYSICS PROBLEMS (mechanics, forces, motion):
   - Use Circle() for particles/masses
   - Use Rectangle() for blocks/surfaces
   - Use Arrow() for force/velocity vectors
   - Animate motion, collisions, rotation

2. MATHEMATICS PROBLEMS (algebra, geometry, calculus):
   - Show equation transformations with MathTex and Transform
   - Draw geometric shapes (Circle, Polygon, Line)
   - Highlight key steps with color changes
   - Animate algebraic manipulations

3. PROBABILITY & COMBINATORICS:
   - Show arrangements visually (e.g., dots on a circle for circular table)
   - Use color coding for different categories (RED=Indian, BLUE=American)
   - Highlight favorable outcomes
   - Show counting process with animations
   - Display fractions and probability calculations

4. GEOMETRY PROBLEMS:
   - Draw accurate shapes (Triangle, Circle, Rectangle, Polygon)
   - Show measurements and angles
   - Animate constructions and proofs
   - Use labels for points and segments

CRITICAL: You MUST generate Manim Python code for ANY type of problem!
Even pure math/probability needs visual animation, not just text explanation.

ADVANCED MANIM FEATURES (USE FOR PROFESSIONAL QUALITY):
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
For Equation Transformations (Mathematics):
✓ Use TransformMatchingTex for morphing equations:
  eq1 = MathTex(r"x^2 + 2x + 1 = 0")
  eq2 = MathTex(r"(x+1)^2 = 0")
  eq3 = MathTex(r"x = -1")
  self.play(TransformMatchingTex(eq1, eq2))
  self.play(TransformMatchingTex(eq2, eq3))
  CRITICAL: Each equation must be a SEPARATE MathTex object!

For Smooth Animations (Physics/Math):
✓ Import and use rate functions:
  from manim.utils.rate_functions import smooth
  self.play(obj.animate.move_to(target), rate_func=smooth, run_time=2)

For Highlighting (Emphasis):
✓ Color individual parts:
  equation = MathTex(r"E", r"=", r"mc^2")
  self.play(equation[0].animate.set_color(YELLOW))

For Advanced Geometry:
✓ Use CurvedArrow for curved vectors:
  arrow = CurvedArrow(start, end, angle=TAU/4, color=RED)

✓ Use ParametricFunction for curves:
  curve = ParametricFunction(lambda t: [t, t**2, 0], t_range=[-2, 2])

Quality Guidelines:
• Use Transform for object-to-object changes
• Use TransformMatchingTex ONLY for equation morphing (separate MathTex objects)
• Use rate_func=smooth for fluid motion
• Use lag_ratio in animations for sequential effects
• Add strategic self.wait() for pacing

USER'S QUESTION: `

const promptOutro = `

CODE LENGTH AND COMPLETENESS (CRITICAL):
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
• Keep code CONCISE but COMPLETE - aim for 50-80 lines maximum
• For complex problems: Focus on KEY steps, combine similar equations
• ENSURE ALL PARENTHESES ARE CLOSED: Count your ( and ) - must be equal!
• ENSURE ALL BRACKETS ARE CLOSED: Count your [ and ] - must be equal!
• Double-check the last line is complete (not cut off mid-statement)
• If creating VGroup, ensure closing parenthesis: VGroup(item1, item2)
• Test: Your code must be valid Python with no syntax errors

CRITICAL VISUALIZATION REQUIREMENTS:
1. RECREATE THE SCENE: Use Manim geometric shapes to draw the diagram.
   - Use ` + "`Circle()`" + ` for particles/masses.
   - Use ` + "`Line()`" + ` or ` + "`Rectangle()`" + ` for rods/surfaces.
   - Use ` + "`Arrow()`" + ` or ` + "`CurvedArrow()`" + ` for velocity vectors.
2. ANIMATE THE PHYSICS:
   - If objects move, use ` + "`.animate.shift()`" + ` or ` + "`MoveAlongPath()`" + `.
   - If objects rotate, use ` + "`.animate.rotate()`" + ` or ` + "`Rotate()`" + `.
   - If a collision happens, visually show the objects touching and then reacting (bouncing/stopping).
3. SYNC MATH WITH ACTION: Show the relevant equation *after* or *during* the visual event. (e.g., Show "Conservation of Momentum" text right after the collision animation).

ADVANCED ANIMATION TECHNIQUES (FOR PROFESSIONAL QUALITY):
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
Smooth Motion (Use rate functions):
✓ from manim.utils.rate_functions import smooth, rush_into, rush_from
✓ self.play(obj.animate.shift(RIGHT*3), rate_func=smooth, run_time=2)

Curved Arrows (For physics vectors):
✓ Use CurvedArrow instead of Arrow with path_arc:
  arrow = CurvedArrow(start_point, end_point, angle=TAU/6, color=RED)
✓ For short distances, use straight Arrow (no curve)

Equation Morphing (TransformMatchingTex):
✓ Create SEPARATE MathTex for each step:
  step1 = MathTex(r"a^2 + b^2")
  step2 = MathTex(r"c^2")
  self.play(TransformMatchingTex(step1, step2))
✗ DON'T use indexing: TransformMatchingTex(eq[0], eq[1])
✗ DON'T use on .copy() - use ReplacementTransform instead

Sequential Animations (lag_ratio):
✓ self.play(Create(group), lag_ratio=0.1, run_time=2)
  This creates each element with a slight delay - professional effect!

Method Compatibility:
✓ Use Create (not ShowCreation - deprecated)
✓ Use point_from_proportion(t) for arc positions (t from 0 to 1)
✗ DON'T use point_at_angle() - doesn't exist
✗ DON'T use angle_from_proportion() - doesn't exist
✗ DON'T use .midpoint() - use .next_to() instead

FRAME BOUNDARIES AND SIZING (ABSOLUTELY CRITICAL - NO OVERFLOW ALLOWED):
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
Manim Frame: 14.22 units wide × 8 units tall
Safe Content Area: -5.5 to +5.5 (x-axis), -2.8 to +2.8 (y-axis)

FONT SIZE LIMITS (STRICTLY ENFORCED - SMALLER FOR SAFETY):
• Main titles: font_size=26-28 (NEVER larger than 30)
• Long titles: font_size=24 OR split into 2-3 lines
• Equations: font_size=20-24 (smaller for dense content)
• Explanatory text: font_size=18-20
• Small labels: font_size=16-18
• If >6 text elements: Reduce ALL sizes by 20% with .scale(0.8)

SPACING RULES (PREVENT OVERLAP):
• VGroup items: buff=0.5 MINIMUM (never less!)
• Between major sections: buff=0.8
• Text blocks: Ensure 0.6 unit space minimum
• Dense content: buff=0.6 for all VGroup.arrange()

POSITIONING WITH GENEROUS MARGINS:
• Titles: .to_edge(UP, buff=1.0) - larger margin!
• Left content: .to_edge(LEFT, buff=1.2) - extra space!
• Right content: .to_edge(RIGHT, buff=1.2) - extra space!
• Bottom content: .to_edge(DOWN, buff=1.2) - prevent cutoff!
• Center content: .shift(UP*0.5) - keep away from bottom

CRITICAL RULES:
✗ NEVER buff < 0.5 in VGroup.arrange()
✗ NEVER buff < 1.0 in .to_edge()
✗ NEVER font_size > 30
✗ NEVER position beyond ±5.5 (x) or ±2.8 (y)

CONTENT DENSITY MANAGEMENT:
• Count your text elements before creating
• If >6 items → font_size=20, buff=0.6, .scale(0.8)
• If >8 items → font_size=18, buff=0.7, .scale(0.75)
• Always prioritize: READABILITY over quantity
• Better to show fewer steps clearly than many steps cramped

SCALING FOR FIT:
• If content might overflow: Use .scale(0.7) or .scale(0.8)
• For diagrams: .scale_to_fit_width(5) for left side
• For equation groups: equations.to_edge(RIGHT, buff=1.0)

CODE STRUCTURE REQUIREMENTS:
- Use the ` + "`Scene`" + ` class.
- Grouping: Use ` + "`VGroup`" + ` to manage equations and objects separately.
- Layout: Keep visual diagram on LEFT, equations on RIGHT, always use .to_edge()

COLORS (ONLY USE THESE - STRICTLY ENFORCED):
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
VALID Manim colors (from manim import *):
• Primary: BLUE, RED, GREEN, YELLOW, PURPLE, ORANGE
• Grayscale: WHITE, BLACK, GRAY
• Additional: PINK, TEAL, GOLD, MAROON

DO NOT use these (will cause NameError):
✗ BROWN (not available - use ORANGE or "#8B4513" hex instead)
✗ BRONZE (use GOLD)
✗ SILVER (use GRAY)
✗ TAN, BEIGE, CREAM (use YELLOW or WHITE)

For custom colors, use hex strings:
• Brown: "#8B4513"
• Silver: "#C0C0C0"
• Any color: "#RRGGBB" format

Example CORRECT:
✓ Circle(color=BLUE)
✓ Rectangle(color=ORANGE)
✓ Line(color="#8B4513")  # Custom brown

Example INCORRECT (will crash):
✗ Circle(color=BROWN)  # NameError!

STRICT CODE TEMPLATE WITH PROPER LAYOUT:
` + "```python" + `
from manim import *

class PhysicsSolution(Scene):
    def construct(self):
        # 1. TITLE (Short, with margins, split if long)
        title = Text("Problem Title", font_size=32).to_edge(UP, buff=0.5)
        # For long titles:
        # title = Text("Long Title\nSplit Into Lines", font_size=30).to_edge(UP, buff=0.5)
        self.play(Write(title))
        self.wait(1)
        self.play(FadeOut(title))

        # 2. VISUAL DIAGRAM (Left side, within frame)
        particle = Circle(radius=0.3, color=BLUE)
        particle.shift(LEFT*4)  # Keep within -6 to 6
        self.play(Create(particle))

        # 3. EQUATIONS (Right side, arranged properly)
        eq1 = MathTex(r"F = ma", font_size=28)
        eq2 = MathTex(r"v = u + at", font_size=28)
        equations = VGroup(eq1, eq2).arrange(DOWN, buff=0.4)
        equations.to_edge(RIGHT, buff=1.0)  # Critical: keeps within frame
        self.play(Write(equations))

        # 4. ANIMATE PHYSICS (smooth motion)
        self.play(particle.animate.shift(RIGHT*4), run_time=2)
        self.wait(1)

        # 5. FINAL ANSWER (center, clear, reasonable size)
        answer = Text("Final Answer", font_size=32, color=GREEN)
        answer.move_to(ORIGIN)
        self.play(Write(answer))
        self.wait(2)
` + "```" + `

CRITICAL LAYOUT EXAMPLES:
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
Example 1: Long Title (CORRECT)
    title = Text("Radiation Heat Transfer\nbetween Parallel Plates", font_size=30)
    title.to_edge(UP, buff=0.5)

Example 2: Multiple Equations (CORRECT)
    eq1 = MathTex(r"W_0 = \sigma T_P^4 - \sigma T_Q^4", font_size=26)
    eq2 = MathTex(r"W_S = \sigma T_P^4 - \sigma T_A^4", font_size=26)
    eq_group = VGroup(eq1, eq2).arrange(DOWN, buff=0.3)
    eq_group.to_edge(RIGHT, buff=1.0)

Example 3: Probability/Combinatorics (CORRECT for circular arrangements)
    # Circular table with people
    table = Circle(radius=2, color=WHITE)
    # Positions around circle (10 people = 10 positions)
    positions = VGroup(*[Dot(table.point_from_proportion(i/10), color=BLUE) for i in range(10)])
    # Labels for people
    labels = VGroup(*[Text("P", font_size=18).next_to(pos, OUT) for pos in positions])
    # Probability calculation
    prob_eq = MathTex("P(A|B) = P(A and B) / P(B)", font_size=28)
    prob_eq.to_edge(RIGHT, buff=1.0)

Example 4: Geometry Problem (CORRECT)
    # Triangle with measurements
    triangle = Polygon(ORIGIN, RIGHT*3, UP*2, color=YELLOW)
    side_label = Text("a = 5", font_size=24).next_to(triangle, DOWN)
    self.play(Create(triangle), Write(side_label))

Example 3: Diagram + Math Layout (CORRECT)
    # Left side - diagram
    diagram = VGroup(plate1, plate2, arrows).scale(0.8)
    diagram.to_edge(LEFT, buff=1.0)

    # Right side - equations
    equations = VGroup(eq1, eq2, eq3).arrange(DOWN, buff=0.3)
    equations.to_edge(RIGHT, buff=1.0)
` + "```" + `

ANIMATION QUALITY GUIDELINES (FOR BEST RESULTS):
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
Timing and Pacing:
✓ Use run_time parameter for control: run_time=2 (seconds)
✓ Use rate_func for smooth motion (import first!):
  from manim.utils.rate_functions import smooth
  self.play(animation, rate_func=smooth)
✓ Use lag_ratio for sequential effects:
  self.play(Create(group), lag_ratio=0.1)

Animation Selection:
✓ Write() - For text and equations appearing
✓ Create() - For drawing shapes (not ShowCreation)
✓ FadeIn/FadeOut - For gentle appearance/disappearance
✓ Transform() - For general object transformations
✓ TransformMatchingTex() - ONLY for equation morphing (separate objects!)
✓ ReplacementTransform() - When replacing one object with another

Strategic Wait Times:
✓ self.wait(1) - After major steps
✓ self.wait(0.5) - Between quick transitions
✓ self.wait(2) - For final answer display

GOAL: Create 3Blue1Brown quality animations - smooth, clear, professional!

OUTPUT FORMAT (ABSOLUTELY CRITICAL - FOLLOW EXACTLY):
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
YOUR RESPONSE MUST START WITH THESE EXACT CHARACTERS:
f
r
o
m

That is: "from manim import *" must be your FIRST LINE.

DO NOT START WITH:
✗ "Here's the solution:"
✗ "` + "```python" + `"
✗ "Let me create..."
✗ ANY explanatory text

YOUR ENTIRE RESPONSE FORMAT:
from manim import *

class SolutionScene(Scene):
    def construct(self):
        [your actual animation code here]

Use class names like: PhysicsSolution, ProbabilitySolution, GeometrySolution, or SolutionScene

CRITICAL RULES FOR ALL PROBLEM TYPES:
- Physics problems → Animate physical objects and motion
- Math problems → Animate equations and transformations
- Probability → Visualize arrangements, outcomes, counting
- Geometry → Draw shapes, show measurements, prove visually
- Return ONLY the raw Python code - nothing else
- ALWAYS include visual animations, not just text explanations
- DO NOT use ImageMobject or external image files - draw everything with code
- DO NOT reference external files - create all visuals with Manim shapes
- Do not use external image assets; draw everything with code
- Ensure all LaTeX is properly escaped (e.g., MathTex(r"\\frac{m}{M}"))
- Class name MUST be exactly: class PhysicsSolution(Scene):
- NO markdown wrappers (no ` + "```" + `)
- NO explanations before or after
- DO NOT include 'pass' statements - write actual animation code
- Your response should be valid Python that can be saved to a .py file and executed immediately

REMEMBER: First character = 'f', First line = "from manim import *"
`
