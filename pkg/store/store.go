// Package store provides in-memory storage for rules and their evaluations.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/lemonberrylabs/condeval/pkg/expr"
	"github.com/lemonberrylabs/condeval/pkg/rules"
	"github.com/lemonberrylabs/condeval/pkg/types"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// EvaluationState represents the outcome of an evaluation.
type EvaluationState string

const (
	EvaluationSucceeded EvaluationState = "SUCCEEDED"
	EvaluationFailed    EvaluationState = "FAILED"
)

// Rule is a stored rule. Stored rules are replaced, never modified, so a
// *Rule obtained from the store stays consistent.
type Rule struct {
	Name        string
	Expression  string
	Type        rules.Type
	Description string
	Source      string
	RevisionID  string
	CreateTime  time.Time
	UpdateTime  time.Time

	compiled *rules.Rule
}

// Compiled returns the compiled rule.
func (r *Rule) Compiled() *rules.Rule {
	return r.compiled
}

// Evaluation records one evaluation of a rule.
type Evaluation struct {
	Name           string
	Rule           string
	RuleRevisionID string
	State          EvaluationState
	Variables      map[string]types.Value
	Result         types.Value
	Error          string
	StartTime      time.Time
	EndTime        time.Time
}

// Duration is the evaluation wall time.
func (e *Evaluation) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// Store is a thread-safe in-memory storage for rules and evaluations.
type Store struct {
	mu          sync.RWMutex
	rules       map[string]*Rule
	evaluations map[string]*Evaluation
	order       []string // evaluation names, oldest first

	maxEvaluations int
	exprOpts       []expr.Option
	meterProvider  metric.MeterProvider
	metrics        *metrics

	// Counter for generating revision IDs
	revCounter int64
}

// Option configures a Store.
type Option func(*Store)

// WithExprOptions sets the options every rule is compiled with.
func WithExprOptions(opts ...expr.Option) Option {
	return func(s *Store) {
		s.exprOpts = append(s.exprOpts, opts...)
	}
}

// WithMaxEvaluations bounds the number of retained evaluation records.
// The oldest are dropped first. Defaults to 1000.
func WithMaxEvaluations(n int) Option {
	return func(s *Store) {
		s.maxEvaluations = n
	}
}

// WithMeterProvider sets the meter provider for store metrics. Defaults to
// the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Store) {
		s.meterProvider = mp
	}
}

// New creates a new empty store.
func New(opts ...Option) *Store {
	s := &Store{
		rules:          make(map[string]*Rule),
		evaluations:    make(map[string]*Evaluation),
		maxEvaluations: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}
	s.metrics = newMetrics(s.meterProvider)
	return s
}

// ExprOptions returns the options rules are compiled with.
func (s *Store) ExprOptions() []expr.Option {
	return append([]expr.Option(nil), s.exprOpts...)
}

// CreateRule compiles and stores a new rule.
func (s *Store) CreateRule(def rules.Definition, source string) (*Rule, error) {
	compiled, err := rules.Compile(def, s.exprOpts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[compiled.Name]; exists {
		return nil, fmt.Errorf("rule '%s' %w", compiled.Name, ErrAlreadyExists)
	}

	now := time.Now()
	r := s.newRuleLocked(compiled, source, now, now)
	s.rules[r.Name] = r
	s.metrics.ruleCount(1)
	return r, nil
}

func (s *Store) newRuleLocked(compiled *rules.Rule, source string, created, updated time.Time) *Rule {
	s.revCounter++
	return &Rule{
		Name:        compiled.Name,
		Expression:  compiled.Expression,
		Type:        compiled.Type,
		Description: compiled.Description,
		Source:      source,
		RevisionID:  fmt.Sprintf("%06d-000", s.revCounter),
		CreateTime:  created,
		UpdateTime:  updated,
		compiled:    compiled,
	}
}

// GetRule retrieves a rule by name.
func (s *Store) GetRule(name string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[name]
	if !ok {
		return nil, fmt.Errorf("rule '%s' %w", name, ErrNotFound)
	}
	return r, nil
}

// ListRules returns all rules sorted by name.
func (s *Store) ListRules() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// RuleUpdate holds the fields of a partial rule update. Nil fields are left
// unchanged.
type RuleUpdate struct {
	Expression  *string
	Type        *rules.Type
	Description *string
}

// UpdateRule applies a partial update, recompiling the rule.
func (s *Store) UpdateRule(name string, upd RuleUpdate) (*Rule, error) {
	current, err := s.GetRule(name)
	if err != nil {
		return nil, err
	}

	def := current.compiled.Definition
	if upd.Expression != nil {
		def.Expression = *upd.Expression
	}
	if upd.Type != nil {
		def.Type = *upd.Type
	}
	if upd.Description != nil {
		def.Description = *upd.Description
	}
	compiled, err := current.compiled.Recompile(def, s.exprOpts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.rules[name]
	if !ok {
		return nil, fmt.Errorf("rule '%s' %w", name, ErrNotFound)
	}
	r := s.newRuleLocked(compiled, old.Source, old.CreateTime, time.Now())
	s.rules[name] = r
	return r, nil
}

// DeleteRule removes a rule. Its evaluation records are kept.
func (s *Store) DeleteRule(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[name]; !ok {
		return fmt.Errorf("rule '%s' %w", name, ErrNotFound)
	}
	delete(s.rules, name)
	s.metrics.ruleCount(-1)
	return nil
}

// LoadRuleSet stores every rule of rs, replacing rules with the same name.
// It returns the number of rules stored.
func (s *Store) LoadRuleSet(rs *rules.RuleSet, source string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, compiled := range rs.Rules() {
		created := now
		if old, ok := s.rules[compiled.Name]; ok {
			created = old.CreateTime
		} else {
			s.metrics.ruleCount(1)
		}
		s.rules[compiled.Name] = s.newRuleLocked(compiled, source, created, now)
	}
	return rs.Len()
}

// Evaluate evaluates the named rule against vars and records the outcome.
// A failing expression yields a FAILED evaluation, not an error; the error
// is reserved for a missing rule.
func (s *Store) Evaluate(ctx context.Context, name string, vars map[string]types.Value) (*Evaluation, error) {
	r, err := s.GetRule(name)
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{
		Name:           uuid.NewString(),
		Rule:           r.Name,
		RuleRevisionID: r.RevisionID,
		Variables:      vars,
		StartTime:      time.Now(),
	}
	result, evalErr := r.compiled.Eval(vars)
	ev.EndTime = time.Now()
	if evalErr != nil {
		ev.State = EvaluationFailed
		ev.Error = evalErr.Error()
	} else {
		ev.State = EvaluationSucceeded
		ev.Result = result
	}
	s.metrics.recordEvaluation(ctx, r.Name, ev.Duration(), evalErr)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evaluations[ev.Name] = ev
	s.order = append(s.order, ev.Name)
	if s.maxEvaluations > 0 && len(s.order) > s.maxEvaluations {
		drop := len(s.order) - s.maxEvaluations
		for _, old := range s.order[:drop] {
			delete(s.evaluations, old)
		}
		s.order = append([]string(nil), s.order[drop:]...)
	}
	return ev, nil
}

// GetEvaluation retrieves an evaluation by name.
func (s *Store) GetEvaluation(name string) (*Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.evaluations[name]
	if !ok {
		return nil, fmt.Errorf("evaluation '%s' %w", name, ErrNotFound)
	}
	return ev, nil
}

// ListEvaluations returns the evaluations of a rule, newest first.
func (s *Store) ListEvaluations(rule string) []*Evaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Evaluation
	for i := len(s.order) - 1; i >= 0; i-- {
		if ev := s.evaluations[s.order[i]]; ev.Rule == rule {
			result = append(result, ev)
		}
	}
	return result
}

// RecentEvaluations returns up to limit evaluations across all rules,
// newest first.
func (s *Store) RecentEvaluations(limit int) []*Evaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit >= 0 && limit < n {
		n = limit
	}
	result := make([]*Evaluation, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.evaluations[s.order[i]])
	}
	return result
}
