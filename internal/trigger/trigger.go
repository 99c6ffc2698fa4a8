// Package trigger decides whether and how a conversational feature
// engages with an inbound event. Rules are evaluated highest priority
// first and evaluation stops at the first match.
package trigger

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/whitecathq/whitecat/internal/channel"
	"github.com/whitecathq/whitecat/internal/priority"
)

// Rule is a predicate+extractor pair. ShouldTrigger reports whether the
// rule claims the event; Extract produces the payload the feature will
// act on (it may be empty, e.g. a bare command).
type Rule interface {
	Name() string
	ShouldTrigger(msg channel.InboundMessage) bool
	Extract(msg channel.InboundMessage) string
}

// Match is the outcome of a successful rule evaluation.
type Match struct {
	Rule    string
	Payload string
}

type rankedRule struct {
	rule     Rule
	priority int
	seq      int
}

// Registry holds trigger rules ordered by priority descending with
// stable registration-order tie-breaks, the same convention as pipeline
// units and resolver candidates.
type Registry struct {
	logger *slog.Logger

	mu    sync.Mutex
	names map[string]struct{}
	rules []rankedRule
	seq   int
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		logger: log.With(slog.String("component", "trigger_registry")),
		names:  map[string]struct{}{},
	}
}

// Register adds rule with the given priority (clamped to [0,100]).
// Duplicate names are a configuration error; disabled rules reserve their
// name but are excluded from ordering entirely.
func (r *Registry) Register(rule Rule, prio int, enabled bool) error {
	if rule == nil {
		return fmt.Errorf("rule is nil")
	}
	name := rule.Name()
	if name == "" {
		return fmt.Errorf("rule name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("rule already registered: %s", name)
	}
	r.names[name] = struct{}{}
	if !enabled {
		r.logger.Info("rule disabled", slog.String("rule", name))
		return nil
	}
	r.rules = append(r.rules, rankedRule{rule: rule, priority: priority.Clamp(prio), seq: r.seq})
	r.seq++
	sort.SliceStable(r.rules, func(i, j int) bool {
		if r.rules[i].priority != r.rules[j].priority {
			return r.rules[i].priority > r.rules[j].priority
		}
		return r.rules[i].seq < r.rules[j].seq
	})
	r.logger.Info("rule registered", slog.String("rule", name), slog.Int("priority", priority.Clamp(prio)))
	return nil
}

// Rules returns the names of enabled rules in evaluation order.
func (r *Registry) Rules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rules))
	for _, rr := range r.rules {
		names = append(names, rr.rule.Name())
	}
	return names
}

// FindMatch evaluates rules in order and returns the first match, if
// any. Rules after the first match are never evaluated. A rule whose
// predicate panics is logged and treated as not matching.
func (r *Registry) FindMatch(msg channel.InboundMessage) (Match, bool) {
	r.mu.Lock()
	rules := make([]rankedRule, len(r.rules))
	copy(rules, r.rules)
	r.mu.Unlock()

	for _, rr := range rules {
		matched := r.evaluate(rr.rule, msg)
		if !matched {
			continue
		}
		payload := rr.rule.Extract(msg)
		r.logger.Debug("trigger matched",
			slog.String("rule", rr.rule.Name()),
			slog.String("chat_id", msg.ChatID))
		return Match{Rule: rr.rule.Name(), Payload: payload}, true
	}
	return Match{}, false
}

func (r *Registry) evaluate(rule Rule, msg channel.InboundMessage) (matched bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("rule panicked",
				slog.String("rule", rule.Name()),
				slog.Any("error", rec))
			matched = false
		}
	}()
	return rule.ShouldTrigger(msg)
}
