package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SyntaxChecker parses candidate scripts with the Tree-sitter Python grammar.
// A tree-sitter parser is not safe for concurrent use, so calls are
// serialized on a mutex.
type SyntaxChecker struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

func NewSyntaxChecker() *SyntaxChecker {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &SyntaxChecker{parser: parser}
}

// Check runs a full parse and reports the first syntax problem with its line
// number. It never executes the script.
func (sc *SyntaxChecker) Check(text string) (bool, string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	content := []byte(text)
	tree, err := sc.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return false, fmt.Sprintf("parse error: %v", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return true, ""
	}

	if node := firstProblemNode(root); node != nil {
		line := int(node.StartPoint().Row) + 1
		if node.IsMissing() {
			return false, fmt.Sprintf("syntax error at line %d: missing %s", line, node.Type())
		}
		return false, fmt.Sprintf("syntax error at line %d: invalid syntax near %q", line, snippet(node.Content(content)))
	}
	return false, "syntax error: invalid syntax"
}

// firstProblemNode walks the tree depth-first for the first ERROR or missing
// node. ERROR nodes appear where the parser could not continue; missing nodes
// are zero-width insertions for expected-but-absent tokens.
func firstProblemNode(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if !child.HasError() && !child.IsMissing() {
			continue
		}
		if found := firstProblemNode(child); found != nil {
			return found
		}
	}
	return nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
