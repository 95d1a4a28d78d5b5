package escalation

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

const decisionQuery = "data.attentiond.escalation.decision"

//go:embed policies/*.rego
var embedded embed.FS

// Action names returned by the default policy
const (
	ActionNotify       = "notify"
	ActionCloseApp     = "close_app"
	ActionSilencePhone = "silence_phone"
)

// Input is the document the policy is evaluated against.
type Input struct {
	Type            string         `json:"type"`
	Label           string         `json:"label"`
	PreviousType    string         `json:"previous_type"`
	GapSeconds      float64        `json:"gap_seconds"`
	DurationSeconds float64        `json:"duration_seconds"`
	Evidence        map[string]int `json:"evidence"`
}

// SuggestedAction is what an external agent is asked to do. The engine never
// performs it.
type SuggestedAction struct {
	Action string `json:"action"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// Engine wraps the rego escalation policy
type Engine struct {
	policyDir string
	logger    zerolog.Logger

	mu    sync.RWMutex
	query rego.PreparedEvalQuery
}

// NewEngine loads the .rego files of policyDir, or the embedded default
// policy when policyDir is empty.
func NewEngine(policyDir string, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "escalation").Logger(),
	}

	query, err := e.prepare()
	if err != nil {
		return nil, err
	}
	e.query = query

	source := policyDir
	if source == "" {
		source = "embedded"
	}
	e.logger.Info().Str("policy_dir", source).Msg("Escalation policy loaded")

	return e, nil
}

// loadPolicies returns module sources keyed by file name
func (e *Engine) loadPolicies() (map[string]string, error) {
	modules := make(map[string]string)

	if e.policyDir == "" {
		files, err := embedded.ReadDir("policies")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded policies: %w", err)
		}
		for _, f := range files {
			content, err := embedded.ReadFile("policies/" + f.Name())
			if err != nil {
				return nil, fmt.Errorf("failed to read embedded policy %s: %w", f.Name(), err)
			}
			modules[f.Name()] = string(content)
		}
		return modules, nil
	}

	files, err := filepath.Glob(filepath.Join(e.policyDir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", e.policyDir)
	}

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}
		modules[file] = string(content)
	}
	return modules, nil
}

func (e *Engine) prepare() (rego.PreparedEvalQuery, error) {
	modules, err := e.loadPolicies()
	if err != nil {
		return rego.PreparedEvalQuery{}, err
	}

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for _, name := range names {
		// Parse first so a syntax error names its file.
		module, err := ast.ParseModule(name, modules[name])
		if err != nil {
			return rego.PreparedEvalQuery{}, fmt.Errorf("failed to parse policy file %s: %w", name, err)
		}
		e.logger.Debug().Str("file", name).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
		opts = append(opts, rego.Module(name, modules[name]))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to prepare escalation query: %w", err)
	}
	return query, nil
}

// Decide evaluates the policy for one escalation.
func (e *Engine) Decide(ctx context.Context, input Input) (SuggestedAction, error) {
	startTime := time.Now()

	raw, err := toDocument(input)
	if err != nil {
		return SuggestedAction{}, err
	}

	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(raw))
	if err != nil {
		return SuggestedAction{}, fmt.Errorf("escalation query evaluation failed: %w", err)
	}

	e.logger.Debug().Dur("duration_ms", time.Since(startTime)).Msg("Escalation query evaluated")

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return SuggestedAction{}, fmt.Errorf("escalation policy returned no decision")
	}

	resultBytes, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return SuggestedAction{}, fmt.Errorf("failed to marshal escalation decision: %w", err)
	}

	var action SuggestedAction
	if err := json.Unmarshal(resultBytes, &action); err != nil {
		return SuggestedAction{}, fmt.Errorf("failed to unmarshal escalation decision: %w", err)
	}
	if action.Action == "" {
		return SuggestedAction{}, fmt.Errorf("escalation decision has no action")
	}

	return action, nil
}

// Reload re-reads the policies. On failure the previous policy stays active.
func (e *Engine) Reload() error {
	e.logger.Info().Msg("Reloading escalation policy")

	query, err := e.prepare()
	if err != nil {
		return fmt.Errorf("failed to reload escalation policy: %w", err)
	}

	e.mu.Lock()
	e.query = query
	e.mu.Unlock()

	e.logger.Info().Msg("Escalation policy reloaded successfully")
	return nil
}

// toDocument round-trips the input through JSON so rego sees plain values.
func toDocument(input Input) (map[string]interface{}, error) {
	if input.Evidence == nil {
		input.Evidence = map[string]int{}
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode escalation input: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode escalation input: %w", err)
	}
	return doc, nil
}
