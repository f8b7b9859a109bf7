// Package rules loads named condition expressions from YAML rule files and
// compiles them once, at load time, so that a malformed expression is
// reported when the file is read rather than when a rule is first used.
//
// A rule file looks like:
//
//	vars:
//	  maxLevel: 10
//	rules:
//	  - name: can-fly
//	    expression: "level >= 5 && perms.contains('fly')"
//	    type: boolean
//	    description: Flight permission
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/condeval/pkg/expr"
	"github.com/lemonberrylabs/condeval/pkg/types"
)

// Type selects how a rule's result is coerced.
type Type string

const (
	TypeBoolean Type = "boolean"
	TypeNumber  Type = "number"
)

// ErrInvalidRule is wrapped by errors for definitions that fail validation.
var ErrInvalidRule = errors.New("invalid rule")

var (
	validate      *validator.Validate
	validRuleName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("rulename", func(fl validator.FieldLevel) bool {
		return ValidName(fl.Field().String())
	})
}

// ValidName reports whether name can be used as a rule name: lowercase
// letters, digits, '-' and '_', starting with a letter, at most 128 bytes.
func ValidName(name string) bool {
	return len(name) <= 128 && validRuleName.MatchString(name)
}

// Definition is a rule as written in a rule file or sent over the API.
type Definition struct {
	Name        string `yaml:"name" json:"name" validate:"required,rulename"`
	Expression  string `yaml:"expression" json:"expression" validate:"required"`
	Type        Type   `yaml:"type" json:"type" default:"boolean" validate:"oneof=boolean number"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Rule is a validated, compiled rule.
type Rule struct {
	Definition
	expr *expr.Expression
	vars map[string]types.Value
}

// Compile validates def and compiles its expression. Missing fields take
// their defaults.
func Compile(def Definition, opts ...expr.Option) (*Rule, error) {
	if err := defaults.Set(&def); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	compiled, err := expr.Compile(def.Expression, opts...)
	if err != nil {
		return nil, err
	}
	return &Rule{Definition: def, expr: compiled}, nil
}

func validateDefinition(def Definition) error {
	err := validate.Struct(def)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		case "rulename":
			msgs = append(msgs, fmt.Sprintf("invalid rule name %q", fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("type must be one of [%s], got %q", fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(msgs, "; "))
}

// bind binds the file-level vars to the rule's expression.
func (r *Rule) bind(vars map[string]types.Value) error {
	for name, v := range vars {
		if err := r.expr.SetVar(name, v); err != nil {
			return err
		}
	}
	r.vars = vars
	return nil
}

// Recompile compiles def as a new rule that keeps the variables bound to r
// by its rule file.
func (r *Rule) Recompile(def Definition, opts ...expr.Option) (*Rule, error) {
	nr, err := Compile(def, opts...)
	if err != nil {
		return nil, err
	}
	if err := nr.bind(r.vars); err != nil {
		return nil, err
	}
	return nr, nil
}

// Vars returns the variables bound by the rule file. It is nil for rules
// compiled on their own.
func (r *Rule) Vars() map[string]types.Value {
	return r.vars
}

// Compiled returns the compiled expression.
func (r *Rule) Compiled() *expr.Expression {
	return r.expr
}

// Eval evaluates the rule against vars, coercing the result to a boolean or
// a double according to the rule type.
func (r *Rule) Eval(vars map[string]types.Value) (types.Value, error) {
	v, err := r.expr.EvalValues(vars)
	if err != nil {
		return types.Null, err
	}
	if r.Type == TypeNumber {
		return types.NewDouble(expr.ToDouble(v)), nil
	}
	return types.NewBool(expr.ToBoolean(v)), nil
}

// file is the on-disk layout of a rule file.
type file struct {
	Vars  map[string]interface{} `yaml:"vars"`
	Rules []Definition           `yaml:"rules"`
}

// RuleSet is the compiled content of one rule file.
type RuleSet struct {
	rules  []*Rule
	byName map[string]*Rule
}

// Parse parses and compiles a rule file. Every problem in the file is
// reported, joined into a single error.
func Parse(data []byte, opts ...expr.Option) (*RuleSet, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	vars, err := types.FromGoMap(f.Vars)
	if err != nil {
		return nil, fmt.Errorf("vars: %w", err)
	}

	rs := &RuleSet{byName: make(map[string]*Rule)}
	var errs []error
	for i, def := range f.Rules {
		label := def.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if _, dup := rs.byName[def.Name]; dup {
			errs = append(errs, fmt.Errorf("rule %s: duplicate name", label))
			continue
		}

		r, err := Compile(def, opts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", label, err))
			continue
		}
		if err := r.bind(vars); err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", label, err))
			continue
		}
		rs.rules = append(rs.rules, r)
		rs.byName[r.Name] = r
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return rs, nil
}

// LoadFile reads and parses a rule file.
func LoadFile(path string, opts ...expr.Option) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	rs, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns the rules in file order.
func (rs *RuleSet) Rules() []*Rule {
	return rs.rules
}

// Names returns the rule names, sorted.
func (rs *RuleSet) Names() []string {
	names := make([]string, 0, len(rs.rules))
	for _, r := range rs.rules {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// Rule returns the rule called name.
func (rs *RuleSet) Rule(name string) (*Rule, bool) {
	r, ok := rs.byName[name]
	return r, ok
}

// Evaluate evaluates the named rule.
func (rs *RuleSet) Evaluate(name string, vars map[string]types.Value) (types.Value, error) {
	r, ok := rs.byName[name]
	if !ok {
		return types.Null, fmt.Errorf("rule %q not found", name)
	}
	return r.Eval(vars)
}

// EvaluateAll evaluates every rule against the same vars. Results of the
// rules that succeeded are returned together with the joined errors of the
// ones that failed.
func (rs *RuleSet) EvaluateAll(vars map[string]types.Value) (map[string]types.Value, error) {
	results := make(map[string]types.Value, len(rs.rules))
	var errs []error
	for _, r := range rs.rules {
		v, err := r.Eval(vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", r.Name, err))
			continue
		}
		results[r.Name] = v
	}
	return results, errors.Join(errs...)
}
