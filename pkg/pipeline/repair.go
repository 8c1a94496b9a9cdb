package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// The repair battery. Rules run unconditionally in this fixed order; each one
// is a no-op when its trigger pattern is absent. Later rules assume earlier
// normalization: identifier substitutions run before parameter rules, the
// bracket rebalancer runs after every rule that can add or drop a paren, and
// punctuation cleanup runs last because appended closers can expose comma
// debris ("f(x, " becomes "f(x, )" becomes "f(x)"). The order is pinned here
// and covered by tests.
type repairRule struct {
	name  string
	apply func(string) (string, bool)
}

var repairBattery = []repairRule{
	{"invalid-colors", fixInvalidColors},
	{"arrow-path-arc", fixArrowPathArc},
	{"curved-arrow-params", fixCurvedArrowParams},
	{"arc-center", fixArcCenter},
	{"linestyle", fixLinestyle},
	{"angle-from-proportion", fixAngleFromProportion},
	{"image-mobject", fixImageMobject},
	{"deprecated-names", fixDeprecatedNames},
	{"fadeout-guard", fixUnguardedFadeOutAll},
	{"transform-matching-tex", fixTransformMatchingTex},
	{"nonexistent-methods", fixNonexistentMethods},
	{"mathtex-raw-string", fixMathTexRawStrings},
	{"opacity-clamp", fixOpacityRange},
	{"slow-text-reveal", fixSlowTextReveal},
	{"wait-cap", fixLongWaits},
	{"rate-func-imports", fixRateFuncImports},
	{"font-size-cap", fixFontSizeCap},
	{"font-density-scale", fixFontDensity},
	{"extreme-positions", fixExtremePositions},
	{"dead-pass", fixDeadPass},
	{"blank-collapse", collapseBlankRuns},
	{"min-buff", fixMinBuff},
	{"dense-vgroup-scale", fixDenseVGroups},
	{"constructor-calls", fixConstructorCalls},
	{"bracket-rebalance", rebalanceBrackets},
	{"punctuation-cleanup", cleanPunctuation},
}

// Repair applies the ordered fix battery to a candidate script. It is total:
// every input yields an output, and a second application yields the same
// output. Individual rules log what they changed.
func Repair(code string) string {
	for _, rule := range repairBattery {
		fixed, applied := rule.apply(code)
		if applied {
			log.Debugf("repair rule applied: %s", rule.name)
			code = fixed
		}
	}
	return code
}

// Invalid color names the model likes to invent, with their substitutes.
// Ordered so longer names are never shadowed by shorter ones.
var colorReplacements = []struct {
	invalid     string
	replacement string
}{
	{"BROWN", `"#8B4513"`},
	{"BRONZE", "GOLD"},
	{"SILVER", "GRAY"},
	{"GREY_BROWN", "GRAY"},
	{"TAN", "YELLOW"},
	{"BEIGE", `"#F5F5DC"`},
	{"CREAM", "WHITE"},
	{"OLIVE", "GREEN"},
	{"NAVY", "BLUE"},
}

func fixInvalidColors(code string) (string, bool) {
	fixed := false
	for _, c := range colorReplacements {
		re := regexp.MustCompile(`(?i)\bcolor\s*=\s*` + c.invalid + `\b`)
		if re.MatchString(code) {
			log.Warnf("Replacing invalid color %s with %s", c.invalid, c.replacement)
			code = re.ReplaceAllString(code, "color="+c.replacement)
			fixed = true
		}
	}
	return code, fixed
}

var (
	arrowPathArcNamedRe      = regexp.MustCompile(`\bArrow\(start\s*=\s*([^,]+),\s*end\s*=\s*([^,]+),\s*path_arc\s*=\s*([^,)]+)([^)]*)\)`)
	arrowPathArcPositionalRe = regexp.MustCompile(`\bArrow\(([^,]+),\s*([^,]+),\s*path_arc\s*=\s*([^,)]+)([^)]*)\)`)
)

// path_arc on a straight Arrow produces geometry errors on short arrows.
// CurvedArrow is the API that actually takes a curvature, as an angle.
func fixArrowPathArc(code string) (string, bool) {
	if !strings.Contains(code, "Arrow(") || !strings.Contains(code, "path_arc") {
		return code, false
	}
	out := arrowPathArcNamedRe.ReplaceAllString(code, "CurvedArrow(start_point=${1}, end_point=${2}, angle=${3}${4})")
	out = arrowPathArcPositionalRe.ReplaceAllString(out, "CurvedArrow(start_point=${1}, end_point=${2}, angle=${3}${4})")
	if out != code {
		log.Warn("Converting Arrow with path_arc to CurvedArrow")
	}
	return out, out != code
}

var (
	curvedArrowStartRe = regexp.MustCompile(`CurvedArrow\(([^)]*)start\s*=`)
	curvedArrowEndRe   = regexp.MustCompile(`CurvedArrow\(([^)]*)end\s*=`)
)

// CurvedArrow takes start_point and end_point, not start and end.
func fixCurvedArrowParams(code string) (string, bool) {
	if !strings.Contains(code, "CurvedArrow") {
		return code, false
	}
	out := curvedArrowStartRe.ReplaceAllString(code, "CurvedArrow(${1}start_point=")
	out = curvedArrowEndRe.ReplaceAllString(out, "CurvedArrow(${1}end_point=")
	if out != code {
		log.Warn("Fixing CurvedArrow parameter names")
	}
	return out, out != code
}

var arcCenterRe = regexp.MustCompile(`,\s*arc_center\s*=\s*[^,)]+`)

func fixArcCenter(code string) (string, bool) {
	if !strings.Contains(code, "arc_center") || !strings.Contains(code, "Arrow") {
		return code, false
	}
	log.Warn("Removing arc_center parameter to prevent errors")
	return arcCenterRe.ReplaceAllString(code, ""), true
}

var (
	linestyleWrapRe  = regexp.MustCompile(`\b(Circle|Arc)\(([^)]+),\s*linestyle\s*=\s*\w+([^)]*)\)`)
	linestyleCommaRe = regexp.MustCompile(`,\s*linestyle\s*=\s*\w+`)
	linestyleLeadRe  = regexp.MustCompile(`linestyle\s*=\s*\w+\s*,`)
	linestyleBareRe  = regexp.MustCompile(`linestyle\s*=\s*\w+`)
)

// linestyle is not a Manim parameter. A dashed Circle or Arc becomes a
// DashedVMobject wrapper; everywhere else the argument is dropped.
func fixLinestyle(code string) (string, bool) {
	if !strings.Contains(code, "linestyle") {
		return code, false
	}
	log.Warn("Converting/removing linestyle parameter")
	if strings.Contains(code, "Circle") || strings.Contains(code, "Arc") {
		code = linestyleWrapRe.ReplaceAllString(code, "DashedVMobject(${1}(${2}${3}))")
	}
	code = linestyleCommaRe.ReplaceAllString(code, "")
	code = linestyleLeadRe.ReplaceAllString(code, "")
	code = linestyleBareRe.ReplaceAllString(code, "")
	return code, true
}

var angleFromProportionRe = regexp.MustCompile(`\.rotate\([^.]*\.angle_from_proportion\([^)]*\)[^)]*\)`)

func fixAngleFromProportion(code string) (string, bool) {
	if !strings.Contains(code, "angle_from_proportion") {
		return code, false
	}
	log.Warn("Removing angle_from_proportion, the method does not exist on Arc")
	return angleFromProportionRe.ReplaceAllString(code, ".rotate(0)"), true
}

var (
	imageMobjectLineRe = regexp.MustCompile(`.*ImageMobject\([^)]+\).*\n`)
	imagePlayRefRe     = regexp.MustCompile(`.*self\.play\([^)]*problem_image[^)]*\).*\n`)
	imageAddRefRe      = regexp.MustCompile(`.*self\.add\([^)]*problem_image[^)]*\).*\n`)
)

// Generated scripts sometimes load image files that do not exist on the
// render host. The whole line goes, along with plays that referenced it.
func fixImageMobject(code string) (string, bool) {
	if !strings.Contains(code, "ImageMobject") {
		return code, false
	}
	log.Warn("Removing ImageMobject usage, external images are not available")
	out := imageMobjectLineRe.ReplaceAllString(code, "")
	out = imagePlayRefRe.ReplaceAllString(out, "")
	out = imageAddRefRe.ReplaceAllString(out, "")
	return out, out != code
}

func fixDeprecatedNames(code string) (string, bool) {
	if !strings.Contains(code, "ShowCreation") {
		return code, false
	}
	log.Warn("Replacing deprecated ShowCreation with Create")
	return strings.ReplaceAll(code, "ShowCreation", "Create"), true
}

var fadeOutAllRe = regexp.MustCompile(`(?m)^([ \t]*)self\.play\(\*\[FadeOut\((\w+)\)\s+for\s+(\w+)\s+in\s+self\.mobjects\]\)[ \t]*$`)

// self.play() raises when the starred comprehension is empty. The boolean
// guard keeps the statement a single expression, so it stays legal in any
// position the original call was.
func fixUnguardedFadeOutAll(code string) (string, bool) {
	out := fadeOutAllRe.ReplaceAllString(code, "${1}self.mobjects and self.play(*[FadeOut(${2}) for ${3} in self.mobjects])")
	if out != code {
		log.Warn("Guarding FadeOut sweep against an empty mobject list")
	}
	return out, out != code
}

var (
	tmtIndexPairRe = regexp.MustCompile(`TransformMatchingTex\((\w+)\[(\d+)\](?:\.copy\(\))?,\s*(\w+)\[(\d+)\]`)
	tmtCopyRe      = regexp.MustCompile(`TransformMatchingTex\(([^,]+\.copy\(\))`)
)

// TransformMatchingTex on two slices of the same MathTex fails to match
// submobjects; ReplacementTransform handles that shape. Copies transform
// plainly.
func fixTransformMatchingTex(code string) (string, bool) {
	if !strings.Contains(code, "TransformMatchingTex") {
		return code, false
	}
	out := tmtIndexPairRe.ReplaceAllStringFunc(code, func(m string) string {
		sub := tmtIndexPairRe.FindStringSubmatch(m)
		if sub[1] != sub[3] {
			return m
		}
		return fmt.Sprintf("ReplacementTransform(%s[%s], %s[%s]", sub[1], sub[2], sub[3], sub[4])
	})
	out = tmtCopyRe.ReplaceAllString(out, "Transform(${1}")
	if out != code {
		log.Warn("Rewriting fragile TransformMatchingTex usage")
	}
	return out, out != code
}

var (
	removedMethodRes = []*regexp.Regexp{
		regexp.MustCompile(`\.get_arc_center\([^)]*\)`),
		regexp.MustCompile(`\.set_arc_center\([^)]*\)`),
		regexp.MustCompile(`\.get_tangent_vector\([^)]*\)`),
		regexp.MustCompile(`\.get_unit_vector\([^)]*\)`),
	}
	midpointRe     = regexp.MustCompile(`\.midpoint\(`)
	pointAtAngleRe = regexp.MustCompile(`\.point_at_angle\(([^)]+)\)`)
)

func fixNonexistentMethods(code string) (string, bool) {
	orig := code
	for _, re := range removedMethodRes {
		code = re.ReplaceAllString(code, "")
	}
	code = midpointRe.ReplaceAllString(code, ".next_to(")
	code = pointAtAngleRe.ReplaceAllString(code, ".point_from_proportion(${1}/(2*PI))")
	if code != orig {
		log.Warn("Removing/replacing methods that do not exist in the Manim API")
	}
	return code, code != orig
}

var (
	mathTexDoubleRe = regexp.MustCompile(`MathTex\("([^"\n]+)"([,)])`)
	mathTexSingleRe = regexp.MustCompile(`MathTex\('([^'\n]+)'([,)])`)
)

// LaTeX escape sequences need raw strings. Only simple single-line literals
// are converted; anything long or multi-line is left alone.
func fixMathTexRawStrings(code string) (string, bool) {
	out := mathTexDoubleRe.ReplaceAllStringFunc(code, func(m string) string {
		sub := mathTexDoubleRe.FindStringSubmatch(m)
		if len(sub[1]) < 100 && strings.Contains(sub[1], `\`) {
			return `MathTex(r"` + sub[1] + `"` + sub[2]
		}
		return m
	})
	out = mathTexSingleRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := mathTexSingleRe.FindStringSubmatch(m)
		if len(sub[1]) < 100 && strings.Contains(sub[1], `\`) {
			return `MathTex(r'` + sub[1] + `'` + sub[2]
		}
		return m
	})
	return out, out != code
}

var opacityRe = regexp.MustCompile(`\b((?:fill_|stroke_)?opacity)\s*=\s*(-?\d+(?:\.\d+)?)`)

// Opacity is normalized alpha. Out-of-range values clamp to the nearest
// bound instead of crashing the renderer.
func fixOpacityRange(code string) (string, bool) {
	out := opacityRe.ReplaceAllStringFunc(code, func(m string) string {
		sub := opacityRe.FindStringSubmatch(m)
		v, err := strconv.ParseFloat(sub[2], 64)
		if err != nil {
			return m
		}
		if v < 0 {
			return sub[1] + "=0"
		}
		if v > 1 {
			return sub[1] + "=1"
		}
		return m
	})
	if out != code {
		log.Warn("Clamping opacity values into [0, 1]")
	}
	return out, out != code
}

var writeSimpleRe = regexp.MustCompile(`self\.play\(Write\((\w+)\)\)`)

// Write renders text stroke by stroke, which is slow at high quality.
// Simple single-target Writes become short FadeIns.
func fixSlowTextReveal(code string) (string, bool) {
	out := writeSimpleRe.ReplaceAllString(code, "self.play(FadeIn(${1}), run_time=0.5)")
	out = strings.ReplaceAll(out, "AddTextLetterByLetter(", "FadeIn(")
	if out != code {
		log.Warn("Converting stroke-by-stroke text reveals to FadeIn")
	}
	return out, out != code
}

const maxWaitSeconds = 3

var waitCallRe = regexp.MustCompile(`self\.wait\((\d+(?:\.\d+)?)\)`)

func fixLongWaits(code string) (string, bool) {
	out := waitCallRe.ReplaceAllStringFunc(code, func(m string) string {
		sub := waitCallRe.FindStringSubmatch(m)
		v, err := strconv.ParseFloat(sub[1], 64)
		if err != nil || v <= maxWaitSeconds {
			return m
		}
		return fmt.Sprintf("self.wait(%d)", maxWaitSeconds)
	})
	if out != code {
		log.Warn("Capping over-long wait calls")
	}
	return out, out != code
}

var rateFuncUseRe = regexp.MustCompile(`rate_func\s*=\s*(ease_\w+)`)

// The ease_* rate functions live in manim.utils.rate_functions and are not
// pulled in by the star import. Synthesize the import right after it.
func fixRateFuncImports(code string) (string, bool) {
	if strings.Contains(code, "from manim.utils.rate_functions import") {
		return code, false
	}
	matches := rateFuncUseRe.FindAllStringSubmatch(code, -1)
	if len(matches) == 0 {
		return code, false
	}
	seen := map[string]bool{}
	var names []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	importLine := "from manim.utils.rate_functions import " + strings.Join(names, ", ")
	out := strings.Replace(code, "from manim import *", "from manim import *\n"+importLine, 1)
	if out != code {
		log.Warnf("Adding missing rate function imports: %s", strings.Join(names, ", "))
	}
	return out, out != code
}

var oversizedFontRe = regexp.MustCompile(`font_size\s*=\s*([1-9]\d{2,}|[3-9]\d)`)

// Anything at 30 or above overflows the frame once a few lines stack up.
func fixFontSizeCap(code string) (string, bool) {
	out := oversizedFontRe.ReplaceAllString(code, "font_size=28")
	if out != code {
		log.Warn("Capping oversized font_size values to 28")
	}
	return out, out != code
}

const (
	denseTextThreshold = 8
	denseFontCeiling   = 23
	minFontSize        = 16
)

var fontSizeValueRe = regexp.MustCompile(`font_size\s*=\s*(\d+)`)

// Dense scenes shrink every remaining large font by 20% with a floor. The
// ceiling guard keeps the rule from re-firing on its own output.
func fixFontDensity(code string) (string, bool) {
	textCount := strings.Count(code, "Text(") + strings.Count(code, "MathTex(")
	if textCount <= denseTextThreshold {
		return code, false
	}
	out := fontSizeValueRe.ReplaceAllStringFunc(code, func(m string) string {
		sub := fontSizeValueRe.FindStringSubmatch(m)
		size, err := strconv.Atoi(sub[1])
		if err != nil || size <= denseFontCeiling {
			return m
		}
		reduced := size * 4 / 5
		if reduced < minFontSize {
			reduced = minFontSize
		}
		return fmt.Sprintf("font_size=%d", reduced)
	})
	if out != code {
		log.Warnf("Detected %d text elements, reducing large font sizes by 20%%", textCount)
	}
	return out, out != code
}

// Shifts beyond the visible frame become edge-relative positioning with a
// fixed margin. move_to variants keep a shift suffix so chained calls still
// parse.
var extremePositionFixes = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\.shift\(LEFT\s*\*\s*(?:[7-9]|1\d)\)`), ".to_edge(LEFT, buff=1.0)"},
	{regexp.MustCompile(`\.move_to\(LEFT\s*\*\s*(?:[7-9]|1\d)\)`), ".to_edge(LEFT, buff=1.0).shift(ORIGIN)"},
	{regexp.MustCompile(`\.shift\(RIGHT\s*\*\s*(?:[7-9]|1\d)\)`), ".to_edge(RIGHT, buff=1.0)"},
	{regexp.MustCompile(`\.move_to\(RIGHT\s*\*\s*(?:[7-9]|1\d)\)`), ".to_edge(RIGHT, buff=1.0).shift(ORIGIN)"},
	{regexp.MustCompile(`\.shift\(UP\s*\*\s*(?:[4-9]|1\d)\)`), ".to_edge(UP, buff=0.5)"},
	{regexp.MustCompile(`\.move_to\(UP\s*\*\s*(?:[4-9]|1\d)\)`), ".to_edge(UP, buff=0.5).shift(ORIGIN)"},
	{regexp.MustCompile(`\.shift\(DOWN\s*\*\s*(?:[4-9]|1\d)\)`), ".to_edge(DOWN, buff=1.0)"},
	{regexp.MustCompile(`\.move_to\(DOWN\s*\*\s*(?:[4-9]|1\d)\)`), ".to_edge(DOWN, buff=1.0).shift(ORIGIN)"},
}

func fixExtremePositions(code string) (string, bool) {
	orig := code
	for _, f := range extremePositionFixes {
		code = f.re.ReplaceAllString(code, f.repl)
	}
	if code != orig {
		log.Warn("Replacing extreme positioning with edge-relative placement")
	}
	return code, code != orig
}

var passLineRe = regexp.MustCompile(`(?m)^[ \t]*pass[ \t]*$`)

func fixDeadPass(code string) (string, bool) {
	if !strings.Contains(code, "self.play") && !strings.Contains(code, "self.wait") {
		return code, false
	}
	out := passLineRe.ReplaceAllString(code, "")
	return out, out != code
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

func collapseBlankRuns(code string) (string, bool) {
	out := blankRunRe.ReplaceAllString(code, "\n\n")
	return out, out != code
}

var (
	smallBuffRe  = regexp.MustCompile(`buff\s*=\s*0\.[0-3]\b`)
	toEdgeBuffRe = regexp.MustCompile(`\.to_edge\(([^,]+),\s*buff\s*=\s*0\.\d+`)
)

// Tiny buff values make labels overlap their targets.
func fixMinBuff(code string) (string, bool) {
	out := smallBuffRe.ReplaceAllString(code, "buff=0.5")
	out = toEdgeBuffRe.ReplaceAllString(out, ".to_edge(${1}, buff=1.2")
	return out, out != code
}

var denseVGroupRe = regexp.MustCompile(`VGroup\([^)]+\)\.arrange\([^)]+\)(?:\.scale\([^)]*\))?`)

// Arranged groups with many members run off screen at full scale.
func fixDenseVGroups(code string) (string, bool) {
	out := denseVGroupRe.ReplaceAllStringFunc(code, func(m string) string {
		if strings.Contains(m, ".scale(") {
			return m
		}
		if strings.Count(m, ",") > 5 {
			return m + ".scale(0.8)"
		}
		return m
	})
	if out != code {
		log.Warn("Scaling down dense VGroup arrangements")
	}
	return out, out != code
}

// Separator artifacts left behind by parameter-removal rules. Each pattern
// loops to a fixed point so runs of separators collapse fully in one pass.
var punctuationFixes = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`,\s*,`), ","},
	{regexp.MustCompile(`,\s*\)`), ")"},
	{regexp.MustCompile(`\(\s*,`), "("},
	{regexp.MustCompile(`,\s*\]`), "]"},
	{regexp.MustCompile(`\[\s*,`), "["},
}

func cleanPunctuation(code string) (string, bool) {
	orig := code
	for _, f := range punctuationFixes {
		for {
			out := f.re.ReplaceAllString(code, f.repl)
			if out == code {
				break
			}
			code = out
		}
	}
	return code, code != orig
}

var constructorCallRe = regexp.MustCompile(`\b((?:Arc|Circle|Rectangle|Line|Arrow|Dot|Text|MathTex|VGroup|Ellipse|Polygon|Square|Triangle)\([^)]+)\)\s*,\s*(\w+\s*=)`)

// A closer that slipped in front of keyword arguments, usually fallout from
// an earlier removal. Scoped to known constructors to avoid false positives.
func fixConstructorCalls(code string) (string, bool) {
	out := constructorCallRe.ReplaceAllString(code, "${1}, ${2}")
	if out != code {
		log.Warn("Repairing malformed constructor call")
	}
	return out, out != code
}

const maxBracketRepair = 50

// Last-resort structural repair: equalize open/close counts by appending
// missing closers to the last non-blank line or trimming excess closers from
// the end. Best effort only; the syntax re-check afterwards is the safety
// net.
func rebalanceBrackets(code string) (string, bool) {
	fixed := false
	kinds := []struct {
		open  byte
		close byte
		name  string
	}{
		{'(', ')', "parentheses"},
		{'[', ']', "brackets"},
		{'{', '}', "braces"},
	}
	for _, k := range kinds {
		diff := strings.Count(code, string(k.open)) - strings.Count(code, string(k.close))
		if diff == 0 {
			continue
		}
		if diff > maxBracketRepair || -diff > maxBracketRepair {
			log.Warnf("Too many unbalanced %s (%d), skipping rebalance", k.name, diff)
			continue
		}
		if diff > 0 {
			code = appendToLastNonBlankLine(code, strings.Repeat(string(k.close), diff))
			log.Warnf("Appended %d closing %s to balance the script", diff, k.name)
			fixed = true
		} else {
			trimmed, removed := trimTrailingClosers(code, k.close, -diff)
			if removed > 0 {
				code = trimmed
				log.Warnf("Removed %d excess closing %s from the end of the script", removed, k.name)
				fixed = true
			}
		}
	}
	return code, fixed
}

func appendToLastNonBlankLine(code, suffix string) string {
	lines := strings.Split(code, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			lines[i] += suffix
			return strings.Join(lines, "\n")
		}
	}
	return code + suffix
}

// trimTrailingClosers strips up to n closers scanning backward line by line,
// stopping at the first non-closer character it meets.
func trimTrailingClosers(code string, closer byte, n int) (string, int) {
	lines := strings.Split(code, "\n")
	removed := 0
	for i := len(lines) - 1; i >= 0 && removed < n; i-- {
		line := strings.TrimRight(lines[i], " \t")
		if line == "" {
			continue
		}
		for removed < n && len(line) > 0 && line[len(line)-1] == closer {
			line = line[:len(line)-1]
			removed++
		}
		lines[i] = line
		if removed < n && strings.TrimSpace(line) != "" {
			break
		}
	}
	return strings.Join(lines, "\n"), removed
}
