// Package planner turns a repository profile into a bounded, sanitized
// attack plan. Generation failures of any kind degrade to a deterministic
// fallback plan; Synthesize never returns an error.
package planner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/cognitoforge/redteam-backend/internal/genai"
	"github.com/cognitoforge/redteam-backend/internal/metrics"
	"github.com/cognitoforge/redteam-backend/internal/scanner"
	"github.com/cognitoforge/redteam-backend/model"
	"github.com/cognitoforge/redteam-backend/util"
	"go.uber.org/zap"
)

const (
	// SampleLimit is the number of selected files read back for the digest.
	SampleLimit = 10
	// SampleMaxSize skips larger files when sampling.
	SampleMaxSize = 100_000
	// GenerationRetries is the retry budget after the first failed call.
	GenerationRetries = 2

	promptAuditLimit   = 1000
	responseAuditLimit = 2000
)

// InsightUnavailable is the insight text used when generation is enabled but fails.
const InsightUnavailable = "Gemini unavailable"

// Profile is what the synthesizer knows about a repository.
type Profile struct {
	RepoID        string
	Manifest      *model.Manifest
	HighRiskFiles []model.FileEntry
	RepoDir       string
}

type codeSample struct {
	path     string
	language string
	classes  []string
	reasons  []string
	vulns    map[string][]string
}

// Synthesizer builds attack plans.
type Synthesizer struct {
	enabled    bool
	generator  genai.Generator
	rules      *scanner.Registry
	retryDelay time.Duration
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithGenerator sets the model client. It is also used by Query when plan
// generation is switched off.
func WithGenerator(g genai.Generator) Option {
	return func(s *Synthesizer) { s.generator = g }
}

// WithGeneration switches model-backed plans and insights on or off.
func WithGeneration(on bool) Option {
	return func(s *Synthesizer) { s.enabled = on }
}

// WithRegistry sets the rules used to re-scan sampled files.
func WithRegistry(r *scanner.Registry) Option {
	return func(s *Synthesizer) { s.rules = r }
}

// WithRetryDelay sets the pause between generation attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Synthesizer) { s.retryDelay = d }
}

// WithTimeout sets the per-attempt generation timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.timeout = d }
}

func New(logger *zap.Logger, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		rules:      scanner.DefaultRegistry(),
		retryDelay: time.Second,
		timeout:    genai.RequestTimeout,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether model generation is active.
func (s *Synthesizer) Enabled() bool {
	return s.enabled
}

// Synthesize produces a plan with between one and maxSteps steps.
func (s *Synthesizer) Synthesize(ctx context.Context, p Profile, maxSteps int) model.AttackPlan {
	if maxSteps < 1 || maxSteps > model.MaxPlanSteps {
		maxSteps = model.MaxPlanSteps
	}
	logger := s.logger.With(zap.String("repo_id", p.RepoID))

	samples := s.sample(p)

	if !s.enabled || s.generator == nil {
		logger.Info("Using fallback attack plan, generation disabled or unconfigured",
			zap.Bool("use_gemini", s.enabled))
		return fallbackPlan(p.RepoID, samples)
	}

	prompt := buildPlanPrompt(p, samples, maxSteps)
	raw, err := s.generateWithRetry(ctx, prompt, logger)
	if err != nil {
		logger.Error("Generation failed after all retries", zap.Error(err))
		return fallbackPlan(p.RepoID, samples)
	}

	parsed, err := parsePlan(raw, allowedPaths(p.HighRiskFiles), maxSteps)
	if err != nil {
		logger.Warn("Model response rejected, using fallback plan", zap.Error(err))
		return fallbackPlan(p.RepoID, samples)
	}

	plan, err := model.NewAttackPlan(p.RepoID, parsed.overall, parsed.steps)
	if err != nil {
		logger.Warn("Model plan failed validation, using fallback plan", zap.Error(err))
		return fallbackPlan(p.RepoID, samples)
	}
	plan.AIInsight = parsed.insight
	plan.PlanSource = model.PlanSourceGemini
	plan.ModelUsed = s.generator.Model()
	plan.Prompt = util.Truncate(prompt, promptAuditLimit)
	plan.RawResponse = util.Truncate(raw, responseAuditLimit)
	plan.FilesAnalyzed = len(samples)

	logger.Info("Attack plan generated",
		zap.Int("steps", len(plan.Steps)),
		zap.String("overall_severity", string(plan.OverallSeverity)),
		zap.String("model", plan.ModelUsed))
	return plan
}

func (s *Synthesizer) generateWithRetry(ctx context.Context, prompt string, logger *zap.Logger) (string, error) {
	var raw string
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		start := time.Now()
		text, err := s.generator.Generate(callCtx, prompt)
		metrics.GenerationSeconds.Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		raw = text
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Generation call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", GenerationRetries),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), GenerationRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", err
	}
	return raw, nil
}

// sample re-reads the first selected files and keeps the ones with detected
// vulnerabilities or a high risk level.
func (s *Synthesizer) sample(p Profile) []codeSample {
	files := p.HighRiskFiles
	if len(files) > SampleLimit {
		files = files[:SampleLimit]
	}

	var samples []codeSample
	for _, f := range files {
		if f.Path == "" || p.RepoDir == "" {
			continue
		}
		full := filepath.Join(p.RepoDir, filepath.FromSlash(f.Path))
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() || info.Size() >= SampleMaxSize {
			continue
		}
		content, err := os.ReadFile(full)
		if err != nil {
			s.logger.Debug("Could not analyze file", zap.String("path", f.Path), zap.Error(err))
			continue
		}

		vulns := s.rules.Scan(content)
		if len(vulns) == 0 && f.RiskLevel != model.SeverityHigh {
			continue
		}
		samples = append(samples, codeSample{
			path:     f.Path,
			language: language(f.Path),
			classes:  s.rules.OrderedClasses(vulns),
			reasons:  f.RiskReasons,
			vulns:    vulns,
		})
	}
	return samples
}

func language(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return "unknown"
}

func allowedPaths(files []model.FileEntry) map[string]struct{} {
	set := make(map[string]struct{}, len(files))
	for _, f := range files {
		if f.Path != "" {
			set[f.Path] = struct{}{}
		}
	}
	return set
}

// Insight asks the model for a short summary of a run. ok is false when
// generation is disabled.
func (s *Synthesizer) Insight(ctx context.Context, run model.SimulationRun, report model.SimulationReport) (insight string, ok bool) {
	if !s.enabled {
		return "", false
	}
	logger := s.logger.With(zap.String("repo_id", run.RepoID), zap.String("run_id", run.RunID))
	if s.generator == nil {
		logger.Warn("Generation enabled but not configured")
		return InsightUnavailable, true
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.generator.Generate(callCtx, buildInsightPrompt(run, report))
	metrics.GenerationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error("Insight generation failed", zap.Error(err))
		return InsightUnavailable, true
	}

	logger.Info("Insight generated", zap.Int("characters", len(text)))
	return strings.TrimSpace(text), true
}

// Query forwards a raw prompt to the model.
func (s *Synthesizer) Query(ctx context.Context, prompt string) (text, modelName string, err error) {
	if s.generator == nil {
		return "", "", genai.ErrNotConfigured
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err = s.generator.Generate(callCtx, prompt)
	metrics.GenerationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", s.generator.Model(), err
	}
	return text, s.generator.Model(), nil
}
