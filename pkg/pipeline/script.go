package pipeline

import (
	"regexp"
	"strings"
)

// FallbackEntryPoint is the scene class the renderer instantiates when no
// class declaration can be discovered in the script.
const FallbackEntryPoint = "PhysicsSolution"

var (
	sceneInheritRe = regexp.MustCompile(`class\s+(\w+)\s*\([^)]*Scene[^)]*\):`)
	sceneNamedRe   = regexp.MustCompile(`class\s+(\w*Scene\w*)`)
)

// Script is the single mutable entity the pipeline operates on: a text
// buffer plus facts derived from it on demand. It lives for one request and
// is never shared or persisted.
type Script struct {
	Text string
}

// Balanced reports whether every bracket kind has matching open/close counts.
func (s *Script) Balanced() (bool, string) {
	return CheckCompleteness(s.Text)
}

// EntryPointName discovers the scene class to render. Declarations that
// inherit from Scene win, then the conventional names, then any class with
// Scene in its name, then the fixed fallback.
func (s *Script) EntryPointName() string {
	if m := sceneInheritRe.FindStringSubmatch(s.Text); m != nil {
		return m[1]
	}
	if strings.Contains(s.Text, "class PhysicsSolution") {
		return "PhysicsSolution"
	}
	if strings.Contains(s.Text, "class SolutionScene") {
		return "SolutionScene"
	}
	if m := sceneNamedRe.FindStringSubmatch(s.Text); m != nil {
		return m[1]
	}
	return FallbackEntryPoint
}
