package processing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// SceneName is the class every generated script must declare.
const SceneName = "GeneratedScene"

// ErrGeneration is returned for every failure of the generation service.
var ErrGeneration = errors.New("script generation failed")

// Generator turns a prompt into a renderable script.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ScriptResponse is the structured output requested from the model.
type ScriptResponse struct {
	Script string `json:"script" jsonschema_description:"The complete, runnable Manim Python script and nothing else"`
}

var scriptResponseSchema = GenerateSchema[ScriptResponse]()

const scriptContract = `- The script must be a single, complete, runnable piece of Python code.
- It must import from the manim library (from manim import *).
- It must contain exactly one class that inherits from manim.Scene.
- The name of that class MUST be ` + SceneName + `.
- Do not include any explanation, comments, or markdown formatting; provide only the raw Python code.
- Only provide the code that generates the animation described in the user's request.`

// GeneratorConfig configures the OpenAI-backed generator.
type GeneratorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ScriptGenerator asks the model for a Manim script, then asks it again to
// repair the first answer against the same contract.
type ScriptGenerator struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewScriptGenerator builds a generator. Retries are disabled; the request
// timeout bounds each of the two calls.
func NewScriptGenerator(cfg GeneratorConfig, logger *zap.Logger) *ScriptGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &ScriptGenerator{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

// Generate runs the draft and correction passes and returns the cleaned script.
func (g *ScriptGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	draft, err := g.ask(ctx, draftMessages(prompt))
	if err != nil {
		g.logger.Warn("draft generation failed", zap.Error(err))
		return "", fmt.Errorf("%w: draft: %v", ErrGeneration, err)
	}
	g.logger.Debug("draft script generated", zap.Int("bytes", len(draft)))

	fixed, err := g.ask(ctx, correctionMessages(prompt, draft))
	if err != nil {
		g.logger.Warn("correction pass failed", zap.Error(err))
		return "", fmt.Errorf("%w: correction: %v", ErrGeneration, err)
	}

	script := StripCodeFences(fixed)
	if script == "" {
		return "", fmt.Errorf("%w: model returned an empty script", ErrGeneration)
	}
	return script, nil
}

func (g *ScriptGenerator) ask(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := getStructuredResponse[ScriptResponse](ctx, g.client, g.model, messages, "manim_script", scriptResponseSchema)
	if err != nil {
		return "", err
	}
	script := strings.TrimSpace(resp.Script)
	if script == "" {
		return "", fmt.Errorf("OpenAI returned empty script")
	}
	return script, nil
}

func draftMessages(prompt string) []openai.ChatCompletionMessageParamUnion {
	system := `You are an expert Manim programmer. Your task is to write a Python script that fulfills the user's request.

INSTRUCTIONS:
` + scriptContract

	user := fmt.Sprintf(`USER REQUEST:
%q

Respond in JSON format with this structure:
{
  "script": "the python script"
}`, prompt)

	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(user),
	}
}

func correctionMessages(prompt, draft string) []openai.ChatCompletionMessageParamUnion {
	system := `You review Manim scripts. Please ensure the script meets the following requirements:
` + scriptContract + `

If it does not, rewrite it so that it does. If it already does, return it unchanged.`

	user := fmt.Sprintf(`USER REQUEST:
%q

PYTHON SCRIPT:
%s

Respond in JSON format with this structure:
{
  "script": "the corrected python script"
}`, prompt, draft)

	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(user),
	}
}

// StripCodeFences removes a leading markdown fence (with or without a language
// tag) and a trailing fence.
func StripCodeFences(code string) string {
	code = strings.TrimSpace(code)
	if strings.HasPrefix(code, "```") {
		code = strings.TrimPrefix(code, "```")
		if nl := strings.IndexByte(code, '\n'); nl >= 0 {
			tag := strings.TrimSpace(code[:nl])
			if tag == "" || isLanguageTag(tag) {
				code = code[nl+1:]
			}
		} else {
			code = strings.TrimPrefix(code, "python")
		}
	}
	code = strings.TrimSpace(code)
	code = strings.TrimSuffix(code, "```")
	return strings.TrimSpace(code)
}

func isLanguageTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "python", "py", "python3":
		return true
	}
	return false
}
