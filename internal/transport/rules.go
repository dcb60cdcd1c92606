package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// RuleFile is the YAML document read by LoadRules:
//
//	flags:
//	  new-checkout:
//	    value: false
//	    rules:
//	      - when: 'user.organizationId == "acme"'
//	        value: true
//	  banner-color:
//	    value: "grey"
//	    rules:
//	      - when: 'user.properties.plan in ["pro", "team"]'
//	        value: "gold"
//	        variant: premium
//	      - percent: 25
//	        value: "blue"
//	        variant: canary
type RuleFile struct {
	Flags map[string]FlagRules `yaml:"flags"`
}

// FlagRules defines one flag: a default and ordered rules
type FlagRules struct {
	// Disabled short-circuits evaluation to a DISABLED result
	Disabled bool `yaml:"disabled"`

	// Value is the default value; a non-false value means enabled
	Value any `yaml:"value"`

	Variant string `yaml:"variant"`

	// Rules are evaluated in order; the first match wins
	Rules []Rule `yaml:"rules"`
}

// Rule is an expr condition with the result it selects. An empty When
// matches every user. Percent limits a match to a sticky share of users.
type Rule struct {
	When    string `yaml:"when"`
	Value   any    `yaml:"value"`
	Variant string `yaml:"variant"`
	Enabled *bool  `yaml:"enabled"`
	Percent *int   `yaml:"percent"`
}

type compiledRule struct {
	program *vm.Program
	percent int
	result  domain.FlagResult
}

type compiledFlag struct {
	disabled bool
	fallback domain.FlagResult
	rules    []compiledRule
}

// RulesTransport evaluates flags in-process from a rule file
type RulesTransport struct {
	mu    sync.RWMutex
	flags map[string]compiledFlag
}

// LoadRules reads and compiles a YAML rule file
func LoadRules(path string) (*RulesTransport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return ParseRules(f)
}

// ParseRules reads and compiles YAML rules from r
func ParseRules(r io.Reader) (*RulesTransport, error) {
	var file RuleFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	return NewRules(file)
}

// NewRules compiles an in-memory rule file
func NewRules(file RuleFile) (*RulesTransport, error) {
	t := &RulesTransport{}
	if err := t.Replace(file); err != nil {
		return nil, err
	}
	return t, nil
}

// Replace swaps the rule set atomically
func (t *RulesTransport) Replace(file RuleFile) error {
	compiled := make(map[string]compiledFlag, len(file.Flags))
	for key, def := range file.Flags {
		cf, err := compileFlag(key, def)
		if err != nil {
			return err
		}
		compiled[key] = cf
	}

	t.mu.Lock()
	t.flags = compiled
	t.mu.Unlock()
	return nil
}

// Keys returns the defined flag keys in sorted order
func (t *RulesTransport) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.flags))
	for k := range t.flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fetch implements Transport. Unknown keys are omitted from the result.
func (t *RulesTransport) Fetch(ctx context.Context, req Request) (map[string]domain.FlagResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := req.Keys
	if req.All() {
		keys = make([]string, 0, len(t.flags))
		for k := range t.flags {
			keys = append(keys, k)
		}
	}

	env := ruleEnv(req.Params)
	unit := bucketUnit(req.Params.User)
	out := make(map[string]domain.FlagResult, len(keys))

	for _, key := range keys {
		cf, ok := t.flags[key]
		if !ok {
			continue
		}

		result, err := cf.evaluate(env, key, unit)
		if err != nil {
			return nil, domain.NewTransportError("rules fetch", []string{key}, err)
		}
		out[key] = result
	}

	return out, nil
}

func (cf compiledFlag) evaluate(env map[string]interface{}, key, unit string) (domain.FlagResult, error) {
	if cf.disabled {
		return domain.FlagResult{Value: domain.BoolValue(false), Reason: domain.ReasonDisabled}, nil
	}

	for _, rule := range cf.rules {
		if rule.program != nil {
			matched, err := expr.Run(rule.program, env)
			if err != nil {
				return domain.FlagResult{}, fmt.Errorf("rule evaluation failed: %w", err)
			}
			if ok, _ := matched.(bool); !ok {
				continue
			}
		}

		if rule.percent >= 100 {
			return rule.result, nil
		}
		if inRollout(key, unit, rule.percent) {
			res := rule.result
			res.Reason = domain.ReasonRollout
			return res, nil
		}
	}

	return cf.fallback, nil
}

func compileFlag(key string, def FlagRules) (compiledFlag, error) {
	fallback, err := ruleResult(def.Value, def.Variant, nil, domain.ReasonDefault)
	if err != nil {
		return compiledFlag{}, fmt.Errorf("flag %q: %w", key, err)
	}

	cf := compiledFlag{disabled: def.Disabled, fallback: fallback}

	for i, r := range def.Rules {
		rule := compiledRule{percent: 100}

		if r.When != "" {
			program, err := expr.Compile(r.When, expr.Env(ruleEnv(Params{})), expr.AsBool())
			if err != nil {
				return compiledFlag{}, fmt.Errorf("flag %q rule %d: %w", key, i, err)
			}
			rule.program = program
		}

		if r.Percent != nil {
			if *r.Percent < 0 || *r.Percent > 100 {
				return compiledFlag{}, fmt.Errorf("flag %q rule %d: percent %d out of range [0, 100]", key, i, *r.Percent)
			}
			rule.percent = *r.Percent
		}

		if rule.program == nil && r.Percent == nil {
			return compiledFlag{}, fmt.Errorf("flag %q rule %d: needs a when condition or a percent", key, i)
		}

		result, err := ruleResult(r.Value, r.Variant, r.Enabled, domain.ReasonMatch)
		if err != nil {
			return compiledFlag{}, fmt.Errorf("flag %q rule %d: %w", key, i, err)
		}
		rule.result = result

		cf.rules = append(cf.rules, rule)
	}

	return cf, nil
}

func ruleResult(raw any, variant string, enabled *bool, reason domain.Reason) (domain.FlagResult, error) {
	if raw == nil && reason == domain.ReasonMatch {
		raw = true
	}

	value, err := domain.ValueOf(raw)
	if err != nil {
		return domain.FlagResult{}, err
	}

	on := isTruthy(value)
	if enabled != nil {
		on = *enabled
	}

	return domain.FlagResult{
		Enabled: on,
		Value:   value,
		Variant: variant,
		Reason:  reason,
	}, nil
}

func isTruthy(v domain.Value) bool {
	switch v.Kind() {
	case domain.KindString:
		s, _ := v.Str()
		return s != ""
	case domain.KindNumber:
		n, _ := v.Number()
		return n != 0
	default:
		b, _ := v.Bool()
		return b
	}
}

// ruleEnv exposes the request to rule expressions
func ruleEnv(p Params) map[string]interface{} {
	user := map[string]interface{}{
		"userId":         "",
		"email":          "",
		"organizationId": "",
		"teamId":         "",
		"properties":     map[string]interface{}{},
	}

	if u := p.User; u != nil {
		user["userId"] = u.UserID
		user["email"] = u.Email
		user["organizationId"] = u.OrganizationID
		user["teamId"] = u.TeamID
		props := make(map[string]interface{}, len(u.Properties))
		for k, v := range u.Properties {
			props[k] = v
		}
		user["properties"] = props
	}

	return map[string]interface{}{
		"clientId":    p.ClientID,
		"environment": p.Environment,
		"user":        user,
	}
}
