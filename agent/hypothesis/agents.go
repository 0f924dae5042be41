package hypothesis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/BaSui01/experimentkit/agent"
	"github.com/BaSui01/experimentkit/llm"
)

// Capability names.
const (
	RefinerName  = "hypothesis_refiner"
	AnalyzerName = "hypothesis_analyzer"
	ReviserName  = "hypothesis_reviser"
)

// Caller sends one prompt to an LLM. *llm.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, req llm.CallRequest) (string, error)
}

// Settings selects the model behind an agent. Zero MaxTokens or a nil
// Temperature keep the agent's own default.
type Settings struct {
	Model         string
	Provider      string
	MaxTokens     int
	Temperature   *float32
	SystemMessage string
}

// SettingsFromArgs reads construction arguments: model, provider, max_tokens,
// temperature and system_message. Missing keys fall back to defaults.
func SettingsFromArgs(args agent.Args, defaults Settings) Settings {
	s := defaults
	s.Model = args.String("model", defaults.Model)
	s.Provider = args.String("provider", defaults.Provider)
	s.SystemMessage = args.String("system_message", defaults.SystemMessage)
	if n, ok := number(args["max_tokens"]); ok && n > 0 {
		s.MaxTokens = int(n)
	}
	if f, ok := number(args["temperature"]); ok {
		s.Temperature = llm.Float32(float32(f))
	}
	return s
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// profile is the fixed call shape of one agent.
type profile struct {
	name          string
	systemMessage string
	maxTokens     int
	temperature   float32
}

var (
	refinerProfile = profile{
		name:          RefinerName,
		systemMessage: "You are a helpful experiment design assistant.",
		maxTokens:     250,
		temperature:   0.7,
	}
	analyzerProfile = profile{
		name:          AnalyzerName,
		systemMessage: "You are a thoughtful and critical experiment design reviewer.",
		maxTokens:     400,
		temperature:   0.6,
	}
	reviserProfile = profile{
		name:          ReviserName,
		systemMessage: "You are a precise experiment improvement agent.",
		maxTokens:     250,
		temperature:   0.7,
	}
)

// base holds what every hypothesis agent shares.
type base struct {
	profile
	caller   Caller
	settings Settings
}

func (b *base) Name() string { return b.name }

// Model returns the model this agent calls.
func (b *base) Model() string { return b.settings.Model }

// Provider returns the provider this agent calls.
func (b *base) Provider() string { return b.settings.Provider }

func (b *base) call(ctx context.Context, prompt string) (string, error) {
	req := llm.CallRequest{
		Prompt:        prompt,
		SystemMessage: b.systemMessage,
		Model:         b.settings.Model,
		Provider:      b.settings.Provider,
		MaxTokens:     b.maxTokens,
		Temperature:   llm.Float32(b.temperature),
	}
	if b.settings.SystemMessage != "" {
		req.SystemMessage = b.settings.SystemMessage
	}
	if b.settings.MaxTokens > 0 {
		req.MaxTokens = b.settings.MaxTokens
	}
	if b.settings.Temperature != nil {
		req.Temperature = b.settings.Temperature
	}
	return b.caller.Call(ctx, req)
}

// Refiner rewrites a hypothesis to be specific, measurable and testable.
type Refiner struct{ base }

func NewRefiner(caller Caller, settings Settings) *Refiner {
	return &Refiner{base{profile: refinerProfile, caller: caller, settings: settings}}
}

// Invoke reads "hypothesis". A Hypothesis input yields a RefinedHypothesis;
// anything else yields a string.
func (r *Refiner) Invoke(ctx context.Context, inputs map[string]any) (any, error) {
	raw, err := agent.RequireInput(inputs, "hypothesis")
	if err != nil {
		return nil, err
	}
	h, typed := asHypothesis(raw)
	hypothesisText := h.Text
	if !typed {
		hypothesisText = text(raw)
	}

	prompt, err := render(refinePrompt, map[string]string{"Hypothesis": hypothesisText})
	if err != nil {
		return nil, fmt.Errorf("render refine prompt: %w", err)
	}
	refined, err := r.call(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if typed {
		return RefinedHypothesis{Text: refined, Original: hypothesisText}, nil
	}
	return refined, nil
}

// Analyzer critiques a refined hypothesis as a peer reviewer would.
type Analyzer struct{ base }

func NewAnalyzer(caller Caller, settings Settings) *Analyzer {
	return &Analyzer{base{profile: analyzerProfile, caller: caller, settings: settings}}
}

// Invoke reads "refined_hypothesis". A RefinedHypothesis input yields an
// Analysis; anything else yields a string.
func (a *Analyzer) Invoke(ctx context.Context, inputs map[string]any) (any, error) {
	raw, err := agent.RequireInput(inputs, "refined_hypothesis")
	if err != nil {
		return nil, err
	}
	refined, typed := asRefined(raw)
	hypothesisText := refined.Text
	if !typed {
		hypothesisText = text(raw)
	}

	prompt, err := render(analyzePrompt, map[string]string{"Hypothesis": hypothesisText})
	if err != nil {
		return nil, fmt.Errorf("render analyze prompt: %w", err)
	}
	analysis, err := a.call(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if typed {
		return Analysis{Text: analysis, Hypothesis: hypothesisText}, nil
	}
	return analysis, nil
}

// Reviser folds reflection feedback back into the hypothesis.
type Reviser struct{ base }

func NewReviser(caller Caller, settings Settings) *Reviser {
	return &Reviser{base{profile: reviserProfile, caller: caller, settings: settings}}
}

// Invoke reads "original" and "reflection". It yields a Revision only when
// original is a RefinedHypothesis and reflection an Analysis.
func (r *Reviser) Invoke(ctx context.Context, inputs map[string]any) (any, error) {
	rawOriginal, err := agent.RequireInput(inputs, "original")
	if err != nil {
		return nil, err
	}
	rawReflection, err := agent.RequireInput(inputs, "reflection")
	if err != nil {
		return nil, err
	}

	refined, refinedTyped := asRefined(rawOriginal)
	originalText, rootText := refined.Text, refined.Original
	if !refinedTyped {
		originalText = text(rawOriginal)
		rootText = originalText
	}
	analysis, analysisTyped := asAnalysis(rawReflection)
	reflectionText := analysis.Text
	if !analysisTyped {
		reflectionText = text(rawReflection)
	}

	prompt, err := render(revisePrompt, map[string]string{
		"Original":   originalText,
		"Reflection": reflectionText,
	})
	if err != nil {
		return nil, fmt.Errorf("render revise prompt: %w", err)
	}
	revised, err := r.call(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if refinedTyped && analysisTyped {
		return Revision{Text: revised, Original: rootText, Analysis: reflectionText}, nil
	}
	return revised, nil
}
