package rules

import "testing"

func TestTurnStateSequence(t *testing.T) {
	ts := &TurnState{Phase: PhaseInit}

	steps := []struct {
		to     Phase
		next   string
		player string
		number int
	}{
		{PhaseSetup, "", "", 0},
		{PhaseDraw, "Alice", "Alice", 1},
		{PhaseMain, "", "Alice", 1},
		{PhaseAttack, "", "Alice", 1},
		{PhaseTurnEnd, "", "Alice", 1},
		{PhaseDraw, "Bob", "Bob", 2},
		{PhaseMain, "", "Bob", 2},
		{PhaseTurnEnd, "", "Bob", 2},
		{PhaseDraw, "Alice", "Alice", 3},
	}

	for i, st := range steps {
		if err := ts.Advance(st.to, st.next); err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if ts.Phase != st.to {
			t.Fatalf("step %d: expected phase %s, got %s", i, st.to, ts.Phase)
		}
		if ts.Player != st.player {
			t.Fatalf("step %d: expected player %q, got %q", i, st.player, ts.Player)
		}
		if ts.Number != st.number {
			t.Fatalf("step %d: expected turn %d, got %d", i, st.number, ts.Number)
		}
	}
}

func TestTurnStateRejectsIllegalTransition(t *testing.T) {
	ts := &TurnState{Phase: PhaseDraw, Player: "Alice", Number: 1}

	if err := ts.Advance(PhaseAttack, ""); err == nil {
		t.Fatalf("expected draw -> attack to be rejected")
	}
	if ts.Phase != PhaseDraw {
		t.Fatalf("phase changed after rejected transition: %s", ts.Phase)
	}

	setup := &TurnState{Phase: PhaseSetup}
	if err := setup.Advance(PhaseDraw, "  "); err == nil {
		t.Fatalf("expected setup -> draw without player to fail")
	}
}

func TestGameOverReachableFromAnyPhase(t *testing.T) {
	for p := range phaseNames {
		if p == PhaseGameOver {
			if CanTransition(p, PhaseGameOver) {
				t.Fatalf("game over must be terminal")
			}
			continue
		}
		if !CanTransition(p, PhaseGameOver) {
			t.Fatalf("expected %s -> game_over to be legal", p)
		}
	}
}

func TestPhaseTextRoundTrip(t *testing.T) {
	for p, name := range phaseNames {
		text, err := p.MarshalText()
		if err != nil || string(text) != name {
			t.Fatalf("marshal %d: got %q, %v", p, text, err)
		}
		var back Phase
		if err := back.UnmarshalText(text); err != nil || back != p {
			t.Fatalf("unmarshal %q: got %s, %v", text, back, err)
		}
	}
	if _, err := ParsePhase("combat"); err == nil {
		t.Fatalf("expected unknown phase error")
	}
}
