package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/caseforge/caseforge/pkg/engine"
)

// Engine evaluates Rego policies against a resolved plan. Policies are kept
// in load order and each exposes a deny set.
type Engine struct {
	mu       sync.RWMutex
	policies []*compiledPolicy
	index    map[string]int
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy *Policy
	pkg    string
	query  rego.PreparedEvalQuery
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	builtins bool
}

// WithoutBuiltins skips the built-in policies.
func WithoutBuiltins() Option {
	return func(o *engineOptions) { o.builtins = false }
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	o := engineOptions{builtins: true}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		index:  make(map[string]int),
		logger: logger.With().Str("subsystem", "policy").Logger(),
	}

	if o.builtins {
		if err := e.loadBuiltinPolicies(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to load built-in policies: %w", err)
		}
	}

	return e, nil
}

// Evaluate runs every enabled policy against input. A policy that fails to
// evaluate aborts the evaluation.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Result, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedPolicies: []string{}}
	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Msg("policy evaluation failed")
			return nil, fmt.Errorf("policy %s: %w", cp.policy.Name, err)
		}
		for _, v := range violations {
			if v.Severity.Blocks() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}
	result.Duration = time.Since(start)

	e.logger.Debug().
		Str("feature_descriptor", input.FeatureDescriptor).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("policy evaluation completed")

	return result, nil
}

// Gate evaluates input and converts a denial into a policy_denied error.
// Warnings are logged.
func (e *Engine) Gate(ctx context.Context, input *Input) (*Result, error) {
	result, err := e.Evaluate(ctx, input)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		e.logger.Warn().
			Str("policy", w.Policy).
			Str("component", w.Component).
			Msg(w.Message)
	}
	if result.Allowed {
		return result, nil
	}
	return result, deniedError(result.Violations)
}

func deniedError(violations []Violation) error {
	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Policy, v.Message)
	}
	err := engine.NewError(engine.ErrorKindPolicyDenied, strings.Join(msgs, "; "), nil)
	if violations[0].Component != "" {
		err.WithComponent(violations[0].Component)
	}
	return err
}

// LoadPolicies loads and compiles policy files. A policy with the name of an
// existing one replaces it.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("policies loaded")

	return nil
}

// AddPolicy compiles and stores a single policy.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileAndStorePolicy(ctx, &policy)
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d))
		}
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Message < violations[j].Message
	})
	return violations, nil
}

// createViolation creates a Violation from a deny element, either a string
// or an object with message, severity and component keys.
func createViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok && Severity(sev).Valid() {
			violation.Severity = Severity(sev)
		}
		if c, ok := v["component"].(string); ok {
			violation.Component = c
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compileAndStorePolicy parses a policy, prepares its deny query and stores
// it. Callers hold the write lock.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	if policy.Severity == "" {
		policy.Severity = SeverityError
	}
	if !policy.Severity.Valid() {
		return fmt.Errorf("invalid severity %q", policy.Severity)
	}

	pkg := module.Package.Path.String()
	query, err := rego.New(
		rego.ParsedModule(module),
		rego.Query(pkg+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	cp := &compiledPolicy{policy: policy, pkg: pkg, query: query}
	if i, ok := e.index[policy.Name]; ok {
		e.policies[i] = cp
	} else {
		e.index[policy.Name] = len(e.policies)
		e.policies = append(e.policies, cp)
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", pkg).
		Msg("policy compiled")

	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(ctx, &builtins[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i, exists := e.index[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return e.policies[i].policy, nil
}

// ListPolicies returns all loaded policies in load order.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, exists := e.index[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	e.policies[i].policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("policy toggled")
	return nil
}
