package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/pipeline/finitestate"
)

// Generator produces candidate Manim scripts from a question and an optional
// problem image. GenerateStrict is the harsher prompt used once, when the
// first response contained no code at all.
type Generator interface {
	Generate(ctx context.Context, question string, image []byte, mimeType string) (string, error)
	GenerateStrict(ctx context.Context, question string, image []byte, mimeType string) (string, error)
}

var (
	ErrSyntaxInvalid    = errors.New("script failed syntax verification")
	ErrStructureInvalid = errors.New("script is missing required structure")
)

// Result is a render-ready script with its diagnostics. Script is handed to
// the renderer byte for byte.
type Result struct {
	Script       string
	EntryPoint   string
	State        string
	Warnings     []string
	Retried      bool
	UsedFallback bool
}

// Pipeline drives one generated script from raw model output to a
// render-ready artifact, tracking progress on a per-request state machine.
type Pipeline struct {
	generator Generator
	syntax    *SyntaxChecker
	limits    ComplexityLimits
	handler   slog.Handler
}

// New wires the orchestrator. The slog handler bridges state machine
// transition logs into the process logger at debug level.
func New(generator Generator, limits ComplexityLimits) *Pipeline {
	return &Pipeline{
		generator: generator,
		syntax:    NewSyntaxChecker(),
		limits:    limits,
		handler:   slog.NewTextHandler(log.StandardLogger().WriterLevel(log.DebugLevel), nil),
	}
}

// Run generates a script for the question and walks it through extraction,
// repair, verification, structure, complexity, and safety. The returned
// error wraps one of ErrNoCodeFound, ErrSyntaxInvalid, ErrStructureInvalid,
// or ErrUnsafeScript when the pipeline ends in a terminal failure state;
// upstream generation errors are returned as-is.
func (p *Pipeline) Run(ctx context.Context, question string, image []byte, mimeType string) (*Result, error) {
	requestID := uuid.New().String()
	logger := log.WithField("request_id", requestID)

	machine, err := finitestate.New(p.handler)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline state machine: %w", err)
	}

	raw, err := p.generator.Generate(ctx, question, image, mimeType)
	if err != nil {
		return nil, fmt.Errorf("generating script: %w", err)
	}

	retried := false
	text, err := ExtractCode(raw)
	if err != nil {
		logger.Warn("No code found in model response, retrying once with the strict prompt")
		if terr := machine.Transition(finitestate.StateExtracting); terr != nil {
			return nil, fmt.Errorf("re-entering extraction: %w", terr)
		}
		retried = true
		raw, err = p.generator.GenerateStrict(ctx, question, image, mimeType)
		if err != nil {
			return nil, fmt.Errorf("regenerating script: %w", err)
		}
		text, err = ExtractCode(raw)
		if err != nil {
			p.terminate(logger, machine, finitestate.StateExtractionFailed, raw)
			return nil, err
		}
	}

	if err := machine.Transition(finitestate.StateRepairing); err != nil {
		return nil, fmt.Errorf("entering repair: %w", err)
	}
	repaired := Repair(text)

	if err := machine.Transition(finitestate.StateVerifying); err != nil {
		return nil, fmt.Errorf("entering verification: %w", err)
	}
	verified, usedFallback, err := p.verify(logger, text, repaired)
	if err != nil {
		p.terminate(logger, machine, finitestate.StateSyntaxFailed, repaired)
		return nil, err
	}

	if err := machine.Transition(finitestate.StateStructureChecking); err != nil {
		return nil, fmt.Errorf("entering structure check: %w", err)
	}
	if ok, missing := CheckStructure(verified); !ok {
		p.terminate(logger, machine, finitestate.StateStructureFailed, verified)
		return nil, fmt.Errorf("%w: %s", ErrStructureInvalid, strings.Join(missing, "; "))
	}

	if err := machine.Transition(finitestate.StateComplexityChecking); err != nil {
		return nil, fmt.Errorf("entering complexity check: %w", err)
	}
	var warnings []string
	if ok, reasons := p.limits.Assess(verified); !ok {
		logger.WithField("reasons", reasons).Warn("Script exceeds complexity budgets, simplifying")
		verified = p.trySimplify(logger, verified)
		if acceptable, remaining := p.limits.Assess(verified); !acceptable {
			warnings = append(warnings, remaining...)
			logger.WithField("reasons", remaining).Warn("Script still exceeds complexity budgets after simplification")
		}
	}

	if err := machine.Transition(finitestate.StateSafetyChecking); err != nil {
		return nil, fmt.Errorf("entering safety check: %w", err)
	}
	if err := CheckSafety(verified); err != nil {
		p.terminate(logger, machine, finitestate.StateSafetyRejected, verified)
		return nil, err
	}

	if err := machine.Transition(finitestate.StateReady); err != nil {
		return nil, fmt.Errorf("entering ready state: %w", err)
	}

	script := Script{Text: verified}
	result := &Result{
		Script:       verified,
		EntryPoint:   script.EntryPointName(),
		State:        machine.GetState(),
		Warnings:     warnings,
		Retried:      retried,
		UsedFallback: usedFallback,
	}
	logger.WithFields(log.Fields{
		"entry_point":   result.EntryPoint,
		"script_length": len(result.Script),
		"used_fallback": result.UsedFallback,
	}).Info("Script ready for rendering")
	return result, nil
}

// verify settles which text continues down the pipeline: the repaired form
// when it parses, the pre-repair form when only it does (every repair is
// discarded, including the synthesized rate function import), otherwise
// neither. Whichever side wins must also leave with balanced brackets.
func (p *Pipeline) verify(logger *log.Entry, original, repaired string) (string, bool, error) {
	if ok, detail := p.syntax.Check(repaired); !ok {
		logger.WithField("detail", detail).Warn("Repaired script does not parse, trying the pre-repair text")
		ok, detail = p.syntax.Check(original)
		if !ok {
			return "", false, fmt.Errorf("%w: %s", ErrSyntaxInvalid, detail)
		}
		fallback := neutralizeRateFuncs(original)
		fallback, err := p.ensureBalanced(logger, fallback)
		if err != nil {
			return "", false, err
		}
		return fallback, true, nil
	}
	balanced, err := p.ensureBalanced(logger, repaired)
	if err != nil {
		return "", false, err
	}
	return balanced, false, nil
}

// ensureBalanced asserts the bracket invariant, allowing one rebalance
// attempt that must itself parse.
func (p *Pipeline) ensureBalanced(logger *log.Entry, text string) (string, error) {
	ok, detail := CheckCompleteness(text)
	if ok {
		return text, nil
	}
	rebalanced, changed := rebalanceBrackets(text)
	if changed {
		if ok, _ := CheckCompleteness(rebalanced); ok {
			if parses, _ := p.syntax.Check(rebalanced); parses {
				logger.Warn("Rebalanced brackets after verification")
				return rebalanced, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSyntaxInvalid, detail)
}

// trySimplify applies the advisory reductions only if the result still
// parses and stays balanced; otherwise the longer form is kept.
func (p *Pipeline) trySimplify(logger *log.Entry, text string) string {
	simplified := Simplify(text)
	if simplified == text {
		return text
	}
	if ok, _ := CheckCompleteness(simplified); !ok {
		logger.Warn("Simplification unbalanced the script, keeping the longer form")
		return text
	}
	if ok, _ := p.syntax.Check(simplified); !ok {
		logger.Warn("Simplification broke the script, keeping the longer form")
		return text
	}
	return simplified
}

var easeRateFuncRe = regexp.MustCompile(`rate_func\s*=\s*ease_\w+`)

// The ease_* functions only exist when their import was synthesized during
// repair. A fallback text never has it, so the references are rewritten to a
// rate function the star import provides.
func neutralizeRateFuncs(code string) string {
	if strings.Contains(code, "from manim.utils.rate_functions import") {
		return code
	}
	return easeRateFuncRe.ReplaceAllString(code, "rate_func=smooth")
}

func (p *Pipeline) terminate(logger *log.Entry, machine finitestate.Machine, state, script string) {
	if err := machine.Transition(state); err != nil {
		logger.WithError(err).Error("State machine rejected terminal transition")
	}
	logger.WithFields(log.Fields{
		"state":         state,
		"script_length": len(script),
	}).Error("Pipeline terminated without a renderable script")
	logger.WithField("script", script).Debug("Failing script text")
}
