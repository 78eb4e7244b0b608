// Package textgen writes application documents with a language model:
// cover letters and resumes tailored to a job description.
package textgen

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"github.com/xkilldash9x/jobagent-cli/internal/llmutil"
	"github.com/xkilldash9x/jobagent-cli/internal/observability"
	"go.uber.org/zap"
)

const (
	// MaxParagraphs bounds a generated cover letter.
	MaxParagraphs = 3

	coverLetterSystem = "You write high-quality finance and O2C cover letters for UAE job applications."
	tailorSystem      = "You optimize resumes for ATS without fabricating details."

	analysisTemperature = 0.2
	tailorTemperature   = 0.4
)

// Sections replaced in a tailored resume.
var tailoredSections = []string{"summary", "skills", "experience"}

// Options tune generation.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Generator implements schemas.TextGenerator on a Model.
type Generator struct {
	model  Model
	opts   Options
	logger *zap.Logger
}

var _ schemas.TextGenerator = (*Generator)(nil)

// New creates a Generator.
func New(model Model, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Generator{model: model, opts: opts, logger: logger.Named("textgen")}
}

// FromConfig builds a Generator for the configured provider.
func FromConfig(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "gemini":
	default:
		return nil, &schemas.PreconditionError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q", cfg.Provider)}
	}
	if cfg.APIKey == "" {
		return nil, &schemas.PreconditionError{Field: "llm.api_key", Reason: "is required"}
	}
	model, err := NewGeminiModel(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(model, Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}, logger), nil
}

// GenerateCoverLetter writes a plain-text letter of at most MaxParagraphs
// paragraphs.
func (g *Generator) GenerateCoverLetter(ctx context.Context, jobDescription, company, title string, profile schemas.Profile) (string, error) {
	out, err := g.model.Generate(ctx, Request{
		System:      coverLetterSystem,
		Prompt:      coverLetterPrompt(jobDescription, company, title, profile),
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("cover letter generation: %w", err)
	}

	paras := llmutil.Paragraphs(llmutil.PlainText(out))
	if len(paras) == 0 {
		return "", &schemas.MalformedOutputError{Task: "cover letter", Err: fmt.Errorf("empty response")}
	}
	if len(paras) > MaxParagraphs {
		g.logger.Debug("Trimming cover letter", zap.Int("paragraphs", len(paras)))
		paras = paras[:MaxParagraphs]
	}
	g.logger.Info("Cover letter generated", zap.String("company", company), zap.String("title", title))
	return strings.Join(paras, "\n\n"), nil
}

func coverLetterPrompt(jobDescription, company, title string, p schemas.Profile) string {
	var b strings.Builder
	b.WriteString("Write a professional, compelling cover letter for this role.\n")
	fmt.Fprintf(&b, "Job Title: %s\nCompany: %s\nJob Description: %s\n", title, company, jobDescription)
	b.WriteString("Candidate Profile:\n")
	fmt.Fprintf(&b, "- Name: %s\n- Current Role: %s\n- Experience: %d years\n", p.Name, p.CurrentRole, p.YearsExperience)
	fmt.Fprintf(&b, "- Key Skills: %s\n", strings.Join(p.Skills, ", "))
	if len(p.Achievements) > 0 {
		fmt.Fprintf(&b, "- Achievements: %s\n", strings.Join(p.Achievements, "; "))
	}
	fmt.Fprintf(&b, "\nConstraints:\n- max %d paragraphs\n- plain text only\n- end with clear call to action\n", MaxParagraphs)
	return b.String()
}

// TailorResume extracts the job's requirements, then asks for rewritten
// summary, skills and experience sections. The returned map is a copy of
// master with those three keys replaced.
func (g *Generator) TailorResume(ctx context.Context, jobDescription string, master map[string]any) (map[string]any, error) {
	// 1. Requirements analysis.
	raw, err := g.model.Generate(ctx, Request{
		Prompt: "Analyze the job description and return strict JSON with keys:\n" +
			"skills, responsibilities, experience_level, keywords, culture.\nJob description:\n" + jobDescription,
		JSON:        true,
		Temperature: analysisTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("requirements analysis: %w", err)
	}
	insights, err := llmutil.ParseJSONResponse[map[string]any](raw)
	if err != nil {
		return nil, &schemas.MalformedOutputError{Task: "requirements analysis", Err: err}
	}

	// 2. Rewrite.
	masterJSON, err := jsoniter.MarshalToString(master)
	if err != nil {
		return nil, fmt.Errorf("encoding master resume: %w", err)
	}
	insightsJSON, _ := jsoniter.MarshalToString(*insights)
	raw, err = g.model.Generate(ctx, Request{
		System: tailorSystem,
		Prompt: "Customize the resume for this role and return strict JSON with keys summary, skills, experience.\n" +
			"MASTER RESUME:\n" + masterJSON + "\nJOB REQUIREMENTS:\n" + insightsJSON,
		JSON:        true,
		Temperature: tailorTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("resume tailoring: %w", err)
	}
	tailored, err := llmutil.ParseJSONResponse[map[string]any](raw)
	if err != nil {
		return nil, &schemas.MalformedOutputError{Task: "resume tailoring", Err: err}
	}

	out := make(map[string]any, len(master)+len(tailoredSections))
	for k, v := range master {
		out[k] = v
	}
	for _, key := range tailoredSections {
		v, ok := (*tailored)[key]
		if !ok || v == nil {
			return nil, &schemas.MalformedOutputError{Task: "resume tailoring", Err: fmt.Errorf("missing %q", key)}
		}
		out[key] = v
	}
	g.logger.Info("Resume tailored", zap.Int("sections", len(tailoredSections)))
	return out, nil
}
