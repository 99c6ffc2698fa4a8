package trigger

import (
	"testing"

	"github.com/whitecathq/whitecat/internal/channel"
)

type fakeRule struct {
	name      string
	matches   bool
	payload   string
	evaluated *bool
}

func (r *fakeRule) Name() string { return r.name }

func (r *fakeRule) ShouldTrigger(_ channel.InboundMessage) bool {
	if r.evaluated != nil {
		*r.evaluated = true
	}
	return r.matches
}

func (r *fakeRule) Extract(_ channel.InboundMessage) string { return r.payload }

func TestFindMatchShortCircuits(t *testing.T) {
	t.Parallel()

	var r1Eval, r2Eval, r3Eval bool
	reg := NewRegistry(nil)
	mustRegister(t, reg, &fakeRule{name: "R1", matches: false, evaluated: &r1Eval}, 80)
	mustRegister(t, reg, &fakeRule{name: "R2", matches: true, payload: "hello", evaluated: &r2Eval}, 60)
	mustRegister(t, reg, &fakeRule{name: "R3", matches: true, evaluated: &r3Eval}, 40)

	match, ok := reg.FindMatch(channel.InboundMessage{})
	if !ok {
		t.Fatalf("expected a match")
	}
	if match.Rule != "R2" || match.Payload != "hello" {
		t.Fatalf("match = %+v, want R2/hello", match)
	}
	if !r1Eval || !r2Eval {
		t.Fatalf("R1 and R2 must be evaluated")
	}
	if r3Eval {
		t.Fatalf("R3 must never be evaluated after R2 matched")
	}
}

func TestFindMatchNoMatch(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	mustRegister(t, reg, &fakeRule{name: "R1"}, 80)

	if _, ok := reg.FindMatch(channel.InboundMessage{}); ok {
		t.Fatalf("expected no match")
	}
}

func TestDisabledRulesSkippedEntirely(t *testing.T) {
	t.Parallel()

	var offEval bool
	reg := NewRegistry(nil)
	if err := reg.Register(&fakeRule{name: "OFF", matches: true, evaluated: &offEval}, 90, false); err != nil {
		t.Fatalf("Register disabled: %v", err)
	}
	mustRegister(t, reg, &fakeRule{name: "ON", matches: true, payload: "on"}, 10)

	match, ok := reg.FindMatch(channel.InboundMessage{})
	if !ok || match.Rule != "ON" {
		t.Fatalf("match = %+v, want ON", match)
	}
	if offEval {
		t.Fatalf("disabled rule must never be evaluated")
	}
	rules := reg.Rules()
	if len(rules) != 1 || rules[0] != "ON" {
		t.Fatalf("Rules = %v, want [ON]", rules)
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	mustRegister(t, reg, &fakeRule{name: "R"}, 50)
	if err := reg.Register(&fakeRule{name: "R"}, 50, true); err == nil {
		t.Fatalf("expected duplicate-name error")
	}
}

func TestEqualPriorityFirstRegisteredWins(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	mustRegister(t, reg, &fakeRule{name: "A", matches: true, payload: "a"}, 50)
	mustRegister(t, reg, &fakeRule{name: "B", matches: true, payload: "b"}, 50)

	for run := 0; run < 5; run++ {
		match, ok := reg.FindMatch(channel.InboundMessage{})
		if !ok || match.Rule != "A" {
			t.Fatalf("run %d: match = %+v, want A", run, match)
		}
	}
}

type panickyRule struct{ name string }

func (r *panickyRule) Name() string                                { return r.name }
func (r *panickyRule) ShouldTrigger(_ channel.InboundMessage) bool { panic("bad predicate") }
func (r *panickyRule) Extract(_ channel.InboundMessage) string     { return "" }

func TestPanickingRuleTreatedAsNoMatch(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	mustRegister(t, reg, &panickyRule{name: "BAD"}, 90)
	mustRegister(t, reg, &fakeRule{name: "GOOD", matches: true, payload: "ok"}, 10)

	match, ok := reg.FindMatch(channel.InboundMessage{})
	if !ok || match.Rule != "GOOD" {
		t.Fatalf("match = %+v, want GOOD", match)
	}
}

func mustRegister(t *testing.T, reg *Registry, rule Rule, prio int) {
	t.Helper()
	if err := reg.Register(rule, prio, true); err != nil {
		t.Fatalf("Register(%s): %v", rule.Name(), err)
	}
}
