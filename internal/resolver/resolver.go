// Package resolver implements two-level priority resolution: an input
// string is matched against registered resolution groups, and the
// candidates of the one matching group are tried in priority order until
// one succeeds. Group selection is exclusive; only candidate selection is
// a fallback chain.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/whitecathq/whitecat/internal/priority"
)

// ErrNoMatchingGroup indicates the input matched no registered group;
// no candidates were tried.
var ErrNoMatchingGroup = errors.New("no resolution group matched input")

// AllCandidatesFailedError indicates every candidate of the matched
// group failed. Attempted carries the exact number tried.
type AllCandidatesFailedError struct {
	Group     string
	Attempted int
}

func (e *AllCandidatesFailedError) Error() string {
	return fmt.Sprintf("all %d candidates of group %s failed", e.Attempted, e.Group)
}

// Candidate resolves an extracted input into a payload. A nil error with
// an empty payload counts as a failure for fallback purposes.
type Candidate interface {
	Name() string
	Resolve(ctx context.Context, input string) (string, error)
}

// Matcher decides whether a group claims an input string and extracts
// the value its candidates will receive.
type Matcher interface {
	Match(input string) (extracted string, ok bool)
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(input string) (string, bool)

// Match implements Matcher.
func (f MatcherFunc) Match(input string) (string, bool) { return f(input) }

type rankedCandidate struct {
	candidate Candidate
	priority  int
	seq       int
}

// Group is a pattern-matched bucket of candidates.
type Group struct {
	name       string
	priority   int
	matcher    Matcher
	names      map[string]struct{}
	candidates []rankedCandidate
	seq        int
}

// NewGroup creates a Group with the given unique uppercase name,
// priority (clamped to [0,100]) and matcher.
func NewGroup(name string, prio int, matcher Matcher) (*Group, error) {
	if name == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if matcher == nil {
		return nil, fmt.Errorf("group %s: matcher is required", name)
	}
	return &Group{
		name:     name,
		priority: priority.Clamp(prio),
		matcher:  matcher,
		names:    map[string]struct{}{},
	}, nil
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Priority returns the clamped group priority.
func (g *Group) Priority() int { return g.priority }

// Candidates returns candidate names in attempt order.
func (g *Group) Candidates() []string {
	names := make([]string, 0, len(g.candidates))
	for _, c := range g.candidates {
		names = append(names, c.candidate.Name())
	}
	return names
}

// AddCandidate appends candidate with the given priority (clamped).
// Duplicate candidate names within a group are a configuration error.
func (g *Group) AddCandidate(c Candidate, prio int) error {
	if c == nil {
		return fmt.Errorf("group %s: candidate is nil", g.name)
	}
	name := c.Name()
	if name == "" {
		return fmt.Errorf("group %s: candidate name is required", g.name)
	}
	if _, exists := g.names[name]; exists {
		return fmt.Errorf("group %s: candidate already registered: %s", g.name, name)
	}
	g.names[name] = struct{}{}
	g.candidates = append(g.candidates, rankedCandidate{candidate: c, priority: priority.Clamp(prio), seq: g.seq})
	g.seq++
	sort.SliceStable(g.candidates, func(i, j int) bool {
		if g.candidates[i].priority != g.candidates[j].priority {
			return g.candidates[i].priority > g.candidates[j].priority
		}
		return g.candidates[i].seq < g.candidates[j].seq
	})
	return nil
}

// Resolution is a successful resolve outcome, carrying the identities of
// the winning group and candidate for captioning and logs. Attempt is
// the 1-based position of the winning candidate in the chain.
type Resolution struct {
	Payload   string
	Group     string
	Candidate string
	Attempt   int
}

// Resolver owns the registered groups. Registration happens at startup;
// after that the group set is read-only and Resolve may be called from
// many goroutines.
type Resolver struct {
	logger         *slog.Logger
	attemptTimeout time.Duration

	mu     sync.Mutex
	names  map[string]struct{}
	groups []*Group
	seq    map[string]int
}

// NewResolver creates a Resolver whose candidate attempts are each
// bounded by attemptTimeout (falls back to 30s when non-positive).
func NewResolver(log *slog.Logger, attemptTimeout time.Duration) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	return &Resolver{
		logger:         log.With(slog.String("component", "resolver")),
		attemptTimeout: attemptTimeout,
		names:          map[string]struct{}{},
		seq:            map[string]int{},
	}
}

// RegisterGroup adds a group with at least one candidate. Duplicate
// group names are a configuration error.
func (r *Resolver) RegisterGroup(g *Group) error {
	if g == nil {
		return fmt.Errorf("group is nil")
	}
	if len(g.candidates) == 0 {
		return fmt.Errorf("group %s has no candidates", g.name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[g.name]; exists {
		return fmt.Errorf("group already registered: %s", g.name)
	}
	r.names[g.name] = struct{}{}
	r.seq[g.name] = len(r.groups)
	r.groups = append(r.groups, g)
	sort.SliceStable(r.groups, func(i, j int) bool {
		if r.groups[i].priority != r.groups[j].priority {
			return r.groups[i].priority > r.groups[j].priority
		}
		return r.seq[r.groups[i].name] < r.seq[r.groups[j].name]
	})
	r.logger.Info("group registered",
		slog.String("group", g.name),
		slog.Int("priority", g.priority),
		slog.Int("candidates", len(g.candidates)))
	return nil
}

// Groups returns group names in match order.
func (r *Resolver) Groups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.groups))
	for _, g := range r.groups {
		names = append(names, g.name)
	}
	return names
}

// CandidateCount returns the total number of registered candidates.
func (r *Resolver) CandidateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, g := range r.groups {
		total += len(g.candidates)
	}
	return total
}

// Resolve matches input against the groups in priority order and runs
// the first matching group's fallback chain. Each candidate is attempted
// at most once per call. Once a group has matched, the resolver never
// falls through to another group.
func (r *Resolver) Resolve(ctx context.Context, input string) (Resolution, error) {
	r.mu.Lock()
	groups := make([]*Group, len(r.groups))
	copy(groups, r.groups)
	r.mu.Unlock()

	for _, g := range groups {
		extracted, ok := g.matcher.Match(input)
		if !ok {
			continue
		}
		return r.resolveGroup(ctx, g, extracted)
	}
	return Resolution{}, ErrNoMatchingGroup
}

func (r *Resolver) resolveGroup(ctx context.Context, g *Group, input string) (Resolution, error) {
	log := r.logger.With(slog.String("group", g.name))
	for i, rc := range g.candidates {
		payload, err := r.attempt(ctx, rc.candidate, input)
		if err != nil {
			log.Warn("candidate failed",
				slog.String("candidate", rc.candidate.Name()),
				slog.Int("attempt", i+1),
				slog.Any("error", err))
			continue
		}
		log.Info("candidate succeeded",
			slog.String("candidate", rc.candidate.Name()),
			slog.Int("attempt", i+1))
		return Resolution{Payload: payload, Group: g.name, Candidate: rc.candidate.Name(), Attempt: i + 1}, nil
	}
	return Resolution{}, &AllCandidatesFailedError{Group: g.name, Attempted: len(g.candidates)}
}

// attempt runs one candidate under the per-attempt timeout, converting
// panics and empty payloads into failures so the chain can move on.
func (r *Resolver) attempt(ctx context.Context, c Candidate, input string) (payload string, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			payload = ""
			err = fmt.Errorf("candidate panicked: %v", rec)
		}
	}()
	payload, err = c.Resolve(attemptCtx, input)
	if err != nil {
		return "", err
	}
	if payload == "" {
		return "", fmt.Errorf("candidate returned empty payload")
	}
	return payload, nil
}
