// Package pipeline implements the ordered, short-circuiting handler chain
// that every inbound chat event flows through. Units run in descending
// priority order, one event at a time per dispatch; a unit may halt the
// chain, and a unit failure is isolated so the remaining units still run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/whitecathq/whitecat/internal/channel"
	"github.com/whitecathq/whitecat/internal/priority"
)

// Unit is one stage of the processing chain. Name must be unique across
// the pipeline (uppercase by convention). Process may read and write the
// shared Context and may halt the chain; returning an error never aborts
// the dispatch, it only logs the failure.
type Unit interface {
	Name() string
	Process(ctx context.Context, pc *Context) error
}

type rankedUnit struct {
	unit     Unit
	priority int
	seq      int
}

// Pipeline orders registered units and dispatches inbound events through
// them. Registration happens at startup; Dispatch may then be called
// concurrently from many goroutines, one per in-flight event.
type Pipeline struct {
	logger *slog.Logger

	mu    sync.Mutex
	names map[string]struct{}
	units []rankedUnit
	seq   int
}

// New creates an empty Pipeline.
func New(log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		logger: log.With(slog.String("component", "pipeline")),
		names:  map[string]struct{}{},
	}
}

// Register adds unit with the given priority (clamped to [0,100]).
// Duplicate names are a configuration error. A disabled unit still
// reserves its name but is excluded from ordering entirely.
func (p *Pipeline) Register(unit Unit, prio int, enabled bool) error {
	if unit == nil {
		return fmt.Errorf("unit is nil")
	}
	name := unit.Name()
	if name == "" {
		return fmt.Errorf("unit name is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.names[name]; exists {
		return fmt.Errorf("unit already registered: %s", name)
	}
	p.names[name] = struct{}{}
	if !enabled {
		p.logger.Info("unit disabled", slog.String("unit", name))
		return nil
	}
	p.units = append(p.units, rankedUnit{unit: unit, priority: priority.Clamp(prio), seq: p.seq})
	p.seq++
	sort.SliceStable(p.units, func(i, j int) bool {
		if p.units[i].priority != p.units[j].priority {
			return p.units[i].priority > p.units[j].priority
		}
		return p.units[i].seq < p.units[j].seq
	})
	p.logger.Info("unit registered", slog.String("unit", name), slog.Int("priority", priority.Clamp(prio)))
	return nil
}

// Units returns the names of enabled units in dispatch order.
func (p *Pipeline) Units() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.units))
	for _, u := range p.units {
		names = append(names, u.unit.Name())
	}
	return names
}

// Dispatch builds a fresh Context for event and runs the enabled units in
// order. It stops as soon as a unit halts the context. A unit that
// returns an error or panics is logged and skipped; the rest of the chain
// still runs. The final Context is returned for inspection.
func (p *Pipeline) Dispatch(ctx context.Context, event channel.InboundMessage) *Context {
	p.mu.Lock()
	units := make([]rankedUnit, len(p.units))
	copy(units, p.units)
	p.mu.Unlock()

	pc := newContext(event)
	log := p.logger.With(slog.String("event_id", pc.ID), slog.String("chat_id", event.ChatID))
	log.Debug("dispatch start", slog.Int("units", len(units)))

	for _, u := range units {
		if err := p.invoke(ctx, u.unit, pc); err != nil {
			log.Error("unit failed",
				slog.String("unit", u.unit.Name()),
				slog.Any("error", err))
			// A failed unit is treated as if it returned without halting.
			pc.halted = false
			continue
		}
		if pc.Halted() {
			log.Debug("pipeline halted", slog.String("unit", u.unit.Name()))
			break
		}
	}

	log.Debug("dispatch complete", slog.Bool("halted", pc.Halted()))
	return pc
}

// invoke runs one unit, converting a panic into an error so a broken
// unit cannot take down the dispatch or sibling events.
func (p *Pipeline) invoke(ctx context.Context, unit Unit, pc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit panicked: %v", r)
		}
	}()
	return unit.Process(ctx, pc)
}
