package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	sceneClassRe = regexp.MustCompile(`class\s+\w+\s*\([^)]*Scene[^)]*\)`)
	constructRe  = regexp.MustCompile(`def\s+construct\s*\(\s*self\s*[,)]`)
	selfCallRe   = regexp.MustCompile(`self\.\w+\(`)
)

// CheckCompleteness verifies that every bracket kind opens as often as it
// closes. A count mismatch usually means the model's output was truncated.
func CheckCompleteness(code string) (bool, string) {
	kinds := []struct {
		name  string
		open  string
		close string
	}{
		{"parentheses", "(", ")"},
		{"brackets", "[", "]"},
		{"braces", "{", "}"},
	}
	for _, k := range kinds {
		openCount := strings.Count(code, k.open)
		closeCount := strings.Count(code, k.close)
		if openCount != closeCount {
			msg := fmt.Sprintf("unbalanced %s: %d open, %d close", k.name, openCount, closeCount)
			log.Warnf("Completeness check failed: %s", msg)
			return false, msg
		}
	}
	return true, ""
}

// CheckStructure runs the four structural predicates and reports every
// missing requirement. Intentionally permissive: it matches class headers and
// call shapes with regexes, never resolving names.
func CheckStructure(code string) (bool, []string) {
	hasImport := strings.Contains(code, "from manim import") || strings.Contains(code, "import manim")
	hasSceneClass := sceneClassRe.MatchString(code)
	hasConstruct := constructRe.MatchString(code)
	hasAnimation := strings.Contains(code, "self.play") ||
		strings.Contains(code, "self.wait") ||
		strings.Contains(code, "self.add") ||
		strings.Contains(code, "self.remove") ||
		selfCallRe.MatchString(code)

	var missing []string
	if !hasImport {
		missing = append(missing, "missing manim import")
	}
	if !hasSceneClass {
		missing = append(missing, "missing Scene class")
	}
	if !hasConstruct {
		missing = append(missing, "missing construct() method")
	}
	if !hasAnimation {
		missing = append(missing, "missing animation code (self.play/wait/add)")
	}

	if len(missing) > 0 {
		log.WithFields(log.Fields{
			"has_import":      hasImport,
			"has_scene_class": hasSceneClass,
			"has_construct":   hasConstruct,
			"has_animation":   hasAnimation,
		}).Error("Structure validation failed")
		return false, missing
	}
	return true, nil
}
