package pipeline

import (
	"errors"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrNoCodeFound is returned when no extraction strategy locates a script in
// the model's response.
var ErrNoCodeFound = errors.New("no valid Python code found in response")

var fencePatterns = []*regexp.Regexp{
	regexp.MustCompile("(?is)```python\\s*(.*?)\\s*```"),
	regexp.MustCompile("(?is)```py\\s*(.*?)\\s*```"),
	regexp.MustCompile("(?is)```\\s*(.*?)\\s*```"),
}

var classToConstructRe = regexp.MustCompile(`(?s)(class\s+\w+\s*\([^)]*Scene[^)]*\):.*?def\s+construct.*)`)

// ExtractCode isolates the Manim script embedded in raw LLM output. Four
// strategies are tried in priority order, highest-confidence first; the first
// match wins.
func ExtractCode(responseText string) (string, error) {
	responseText = strings.TrimSpace(responseText)

	// Strategy 1: fenced code blocks, all fence spellings.
	for _, pattern := range fencePatterns {
		for _, m := range pattern.FindAllStringSubmatch(responseText, -1) {
			block := m[1]
			if hasManimImport(block) && strings.Contains(block, "class") && strings.Contains(block, "Scene") {
				log.Info("Code extracted via markdown block pattern")
				return strings.TrimSpace(block), nil
			}
		}
	}

	// Strategy 2: slice from the first import line to the end.
	if hasManimImport(responseText) {
		lines := strings.Split(responseText, "\n")
		startIdx := -1
		for i, line := range lines {
			if strings.Contains(line, "from manim import") || strings.Contains(line, "import manim") {
				startIdx = i
				break
			}
		}
		if startIdx >= 0 {
			code := strings.TrimSpace(strings.Join(lines[startIdx:], "\n"))
			if strings.Contains(code, "class") && strings.Contains(code, "Scene") {
				log.Info("Code extracted via import statement search")
				return code, nil
			}
		}
	}

	// Strategy 3: class declaration through construct body, synthesizing the
	// import line when the slice lacks one.
	if strings.Contains(responseText, "class ") && strings.Contains(responseText, "Scene") &&
		strings.Contains(responseText, "def construct") {
		if m := classToConstructRe.FindStringSubmatch(responseText); m != nil {
			code := strings.TrimSpace(m[1])
			if !hasManimImport(code) {
				code = "from manim import *\n\n" + code
			}
			log.Info("Code extracted via class definition search")
			return code, nil
		}
	}

	// Strategy 4: aggressive earliest-marker slice, truncated at the first
	// triple newline (prose usually follows a blank-line run).
	if strings.Contains(responseText, "def construct") {
		earliest := len(responseText)
		for _, marker := range []string{"from manim", "import manim", "class "} {
			if pos := strings.Index(responseText, marker); pos >= 0 && pos < earliest {
				earliest = pos
			}
		}
		if earliest < len(responseText) {
			code := strings.TrimSpace(responseText[earliest:])
			if i := strings.Index(code, "\n\n\n"); i >= 0 {
				code = code[:i]
			}
			log.Info("Code extracted via aggressive pattern matching")
			return code, nil
		}
	}

	logExtractionFailure(responseText)
	return "", ErrNoCodeFound
}

func hasManimImport(text string) bool {
	return strings.Contains(text, "from manim import") || strings.Contains(text, "import manim")
}

// logExtractionFailure records enough of the response to diagnose why no
// strategy matched.
func logExtractionFailure(responseText string) {
	head := responseText
	if len(head) > 300 {
		head = head[:300]
	}
	tail := responseText
	if len(tail) > 300 {
		tail = tail[len(tail)-300:]
	}
	log.WithFields(log.Fields{
		"response_length":        len(responseText),
		"contains_from_manim":    strings.Contains(responseText, "from manim"),
		"contains_import_manim":  strings.Contains(responseText, "import manim"),
		"contains_class":         strings.Contains(responseText, "class"),
		"contains_scene":         strings.Contains(responseText, "Scene"),
		"contains_def_construct": strings.Contains(responseText, "def construct"),
		"response_first_300":     head,
		"response_last_300":      tail,
	}).Error("Code extraction failed")
}
