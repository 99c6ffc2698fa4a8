package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/whitecathq/whitecat/internal/channel"
)

type fakeUnit struct {
	name    string
	process func(ctx context.Context, pc *Context) error
}

func (u *fakeUnit) Name() string { return u.name }

func (u *fakeUnit) Process(ctx context.Context, pc *Context) error {
	if u.process == nil {
		return nil
	}
	return u.process(ctx, pc)
}

func recordingUnit(name string, order *[]string) *fakeUnit {
	return &fakeUnit{name: name, process: func(_ context.Context, _ *Context) error {
		*order = append(*order, name)
		return nil
	}}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	p := New(nil)
	if err := p.Register(&fakeUnit{name: "VIDEO"}, 80, true); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := p.Register(&fakeUnit{name: "VIDEO"}, 10, true); err == nil {
		t.Fatalf("expected duplicate-name error")
	}
	// A disabled unit reserves its name too.
	if err := p.Register(&fakeUnit{name: "AI"}, 50, false); err != nil {
		t.Fatalf("Register disabled: %v", err)
	}
	if err := p.Register(&fakeUnit{name: "AI"}, 50, true); err == nil {
		t.Fatalf("expected duplicate-name error for disabled unit's name")
	}
}

func TestDispatchOrdersByPriorityDescending(t *testing.T) {
	t.Parallel()

	var order []string
	p := New(nil)
	// Registered in shuffled order on purpose.
	mustRegister(t, p, recordingUnit("LOW", &order), 10, true)
	mustRegister(t, p, recordingUnit("HIGH", &order), 90, true)
	mustRegister(t, p, recordingUnit("MID", &order), 50, true)

	p.Dispatch(context.Background(), channel.InboundMessage{})
	want := []string{"HIGH", "MID", "LOW"}
	assertOrder(t, order, want)
}

func TestDispatchStableTieBreakByRegistration(t *testing.T) {
	t.Parallel()

	for run := 0; run < 5; run++ {
		var order []string
		p := New(nil)
		mustRegister(t, p, recordingUnit("FIRST", &order), 50, true)
		mustRegister(t, p, recordingUnit("SECOND", &order), 50, true)
		mustRegister(t, p, recordingUnit("THIRD", &order), 50, true)

		p.Dispatch(context.Background(), channel.InboundMessage{})
		assertOrder(t, order, []string{"FIRST", "SECOND", "THIRD"})
	}
}

func TestPriorityClamped(t *testing.T) {
	t.Parallel()

	var order []string
	p := New(nil)
	mustRegister(t, p, recordingUnit("OVER", &order), 150, true)  // clamps to 100
	mustRegister(t, p, recordingUnit("UNDER", &order), -20, true) // clamps to 0
	mustRegister(t, p, recordingUnit("MID", &order), 50, true)

	p.Dispatch(context.Background(), channel.InboundMessage{})
	assertOrder(t, order, []string{"OVER", "MID", "UNDER"})
}

func TestHaltStopsLowerPriorityUnits(t *testing.T) {
	t.Parallel()

	var order []string
	p := New(nil)
	mustRegister(t, p, &fakeUnit{name: "H1", process: func(_ context.Context, pc *Context) error {
		order = append(order, "H1")
		pc.Halt()
		return nil
	}}, 80, true)
	mustRegister(t, p, recordingUnit("H2", &order), 50, true)

	pc := p.Dispatch(context.Background(), channel.InboundMessage{})
	assertOrder(t, order, []string{"H1"})
	if !pc.Halted() {
		t.Fatalf("context not halted")
	}
}

func TestFailingUnitDoesNotStopChain(t *testing.T) {
	t.Parallel()

	var order []string
	p := New(nil)
	mustRegister(t, p, &fakeUnit{name: "BROKEN", process: func(_ context.Context, _ *Context) error {
		order = append(order, "BROKEN")
		return errors.New("boom")
	}}, 90, true)
	mustRegister(t, p, recordingUnit("NEXT", &order), 50, true)

	p.Dispatch(context.Background(), channel.InboundMessage{})
	assertOrder(t, order, []string{"BROKEN", "NEXT"})
}

func TestPanickingUnitDoesNotStopChain(t *testing.T) {
	t.Parallel()

	var order []string
	p := New(nil)
	mustRegister(t, p, &fakeUnit{name: "PANIC", process: func(_ context.Context, _ *Context) error {
		order = append(order, "PANIC")
		panic("kaboom")
	}}, 90, true)
	mustRegister(t, p, recordingUnit("NEXT", &order), 50, true)

	p.Dispatch(context.Background(), channel.InboundMessage{})
	assertOrder(t, order, []string{"PANIC", "NEXT"})
}

func TestFailedUnitHaltIsIgnored(t *testing.T) {
	t.Parallel()

	var order []string
	p := New(nil)
	mustRegister(t, p, &fakeUnit{name: "HALT_THEN_FAIL", process: func(_ context.Context, pc *Context) error {
		order = append(order, "HALT_THEN_FAIL")
		pc.Halt()
		return errors.New("boom")
	}}, 90, true)
	mustRegister(t, p, recordingUnit("NEXT", &order), 50, true)

	pc := p.Dispatch(context.Background(), channel.InboundMessage{})
	assertOrder(t, order, []string{"HALT_THEN_FAIL", "NEXT"})
	if pc.Halted() {
		t.Fatalf("halt from a failed unit must be discarded")
	}
}

func TestDisabledUnitsExcludedFromOrdering(t *testing.T) {
	t.Parallel()

	var order []string
	p := New(nil)
	mustRegister(t, p, recordingUnit("ON", &order), 50, true)
	mustRegister(t, p, recordingUnit("OFF", &order), 90, false)

	p.Dispatch(context.Background(), channel.InboundMessage{})
	assertOrder(t, order, []string{"ON"})
	units := p.Units()
	if len(units) != 1 || units[0] != "ON" {
		t.Fatalf("Units = %v, want [ON]", units)
	}
}

func TestConcurrentDispatchesAreIsolated(t *testing.T) {
	t.Parallel()

	const events = 32
	var mu sync.Mutex
	counts := map[string]int{}
	p := New(nil)
	mustRegister(t, p, &fakeUnit{name: "FAIL_ODD", process: func(_ context.Context, pc *Context) error {
		if pc.Event.ChatID == "odd" {
			return errors.New("boom")
		}
		return nil
	}}, 90, true)
	mustRegister(t, p, &fakeUnit{name: "COUNT", process: func(_ context.Context, pc *Context) error {
		mu.Lock()
		counts[pc.Event.ChatID]++
		mu.Unlock()
		return nil
	}}, 50, true)

	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		chatID := "even"
		if i%2 == 1 {
			chatID = "odd"
		}
		go func(chatID string) {
			defer wg.Done()
			p.Dispatch(context.Background(), channel.InboundMessage{ChatID: chatID})
		}(chatID)
	}
	wg.Wait()

	// Every event reaches COUNT regardless of FAIL_ODD's failures.
	if counts["even"] != events/2 || counts["odd"] != events/2 {
		t.Fatalf("counts = %v, want %d each", counts, events/2)
	}
}

func TestContextAnnotations(t *testing.T) {
	t.Parallel()

	p := New(nil)
	mustRegister(t, p, &fakeUnit{name: "WRITER", process: func(_ context.Context, pc *Context) error {
		pc.Set("video_url", "https://example.com/v.mp4")
		return nil
	}}, 90, true)
	var read string
	mustRegister(t, p, &fakeUnit{name: "READER", process: func(_ context.Context, pc *Context) error {
		if v, ok := pc.Get("video_url"); ok {
			read = v.(string)
		}
		return nil
	}}, 50, true)

	pc := p.Dispatch(context.Background(), channel.InboundMessage{})
	if read != "https://example.com/v.mp4" {
		t.Fatalf("annotation not shared: %q", read)
	}
	if pc.ID == "" {
		t.Fatalf("context ID must be set")
	}
}

func mustRegister(t *testing.T, p *Pipeline, u Unit, prio int, enabled bool) {
	t.Helper()
	if err := p.Register(u, prio, enabled); err != nil {
		t.Fatalf("Register(%s): %v", u.Name(), err)
	}
}

func assertOrder(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("invocation order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("invocation order = %v, want %v", got, want)
		}
	}
}
