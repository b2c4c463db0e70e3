package tap

import "testing"

func TestNextStateTable(t *testing.T) {
	type transition struct {
		start State
		tms   bool
		end   State
	}

	cases := []transition{
		{StateTestLogicReset, false, StateRunTestIdle},
		{StateTestLogicReset, true, StateTestLogicReset},
		{StateRunTestIdle, false, StateRunTestIdle},
		{StateRunTestIdle, true, StateSelectDRScan},
		{StateSelectDRScan, false, StateCaptureDR},
		{StateSelectDRScan, true, StateSelectIRScan},
		{StateCaptureDR, false, StateShiftDR},
		{StateCaptureDR, true, StateExit1DR},
		{StateShiftDR, false, StateShiftDR},
		{StateShiftDR, true, StateExit1DR},
		{StateExit1DR, false, StatePauseDR},
		{StateExit1DR, true, StateUpdateDR},
		{StatePauseDR, false, StatePauseDR},
		{StatePauseDR, true, StateExit2DR},
		{StateExit2DR, false, StateShiftDR},
		{StateExit2DR, true, StateUpdateDR},
		{StateUpdateDR, false, StateRunTestIdle},
		{StateUpdateDR, true, StateSelectDRScan},
		{StateSelectIRScan, false, StateCaptureIR},
		{StateSelectIRScan, true, StateTestLogicReset},
		{StateCaptureIR, false, StateShiftIR},
		{StateCaptureIR, true, StateExit1IR},
		{StateShiftIR, false, StateShiftIR},
		{StateShiftIR, true, StateExit1IR},
		{StateExit1IR, false, StatePauseIR},
		{StateExit1IR, true, StateUpdateIR},
		{StatePauseIR, false, StatePauseIR},
		{StatePauseIR, true, StateExit2IR},
		{StateExit2IR, false, StateShiftIR},
		{StateExit2IR, true, StateUpdateIR},
		{StateUpdateIR, false, StateRunTestIdle},
		{StateUpdateIR, true, StateSelectDRScan},
	}

	if len(cases) != 32 {
		t.Fatalf("table covers %d edges, want 32", len(cases))
	}
	for _, tc := range cases {
		if got := NextState(tc.start, tc.tms); got != tc.end {
			t.Fatalf("NextState(%s, %v) = %s, want %s", tc.start, tc.tms, got, tc.end)
		}
	}
}

func TestFiveOnesResetFromEveryState(t *testing.T) {
	for _, start := range States() {
		s := start
		for i := 0; i < 5; i++ {
			s = NextState(s, true)
		}
		if s != StateTestLogicReset {
			t.Errorf("five TMS=1 from %s ended in %s", start, s)
		}
	}
}

func TestNextStateDeterministic(t *testing.T) {
	for _, s := range States() {
		for _, tms := range []bool{false, true} {
			first := NextState(s, tms)
			for i := 0; i < 3; i++ {
				if again := NextState(s, tms); again != first {
					t.Fatalf("NextState(%s, %v) returned %s then %s", s, tms, first, again)
				}
			}
			if !first.Valid() {
				t.Fatalf("NextState(%s, %v) = %s, not a TAP state", s, tms, first)
			}
		}
	}
}

func TestNextStateInvalidInputStaysTotal(t *testing.T) {
	if got := NextState(State(200), false); got != StateRunTestIdle {
		t.Fatalf("NextState(invalid, 0) = %s, want RunTestIdle", got)
	}
}

func TestStateMachineReset(t *testing.T) {
	m := NewStateMachine()
	m.ClockAll([]bool{false, true, false, false}) // -> ShiftDR
	if m.State() != StateShiftDR {
		t.Fatalf("State() = %s, want %s", m.State(), StateShiftDR)
	}

	seq := m.Reset()

	if len(seq.TMS) != 5 || len(seq.States) != 6 {
		t.Fatalf("Reset sequence sizes = %d/%d, want 5/6", len(seq.TMS), len(seq.States))
	}
	if seq.States[0] != StateShiftDR {
		t.Fatalf("sequence start = %s, want ShiftDR", seq.States[0])
	}
	if m.State() != StateTestLogicReset || seq.End() != StateTestLogicReset {
		t.Fatalf("after reset: machine %s, sequence end %s", m.State(), seq.End())
	}
}

func TestGoToShiftIR(t *testing.T) {
	m := NewStateMachine()
	m.Clock(false) // -> RunTestIdle

	path, err := m.GoTo(StateShiftIR)
	if err != nil {
		t.Fatalf("GoTo returned error: %v", err)
	}

	wantBits := []bool{true, true, false, false}
	if len(path.TMS) != len(wantBits) {
		t.Fatalf("GoTo length = %d, want %d", len(path.TMS), len(wantBits))
	}
	for i, want := range wantBits {
		if path.TMS[i] != want {
			t.Fatalf("path bit %d = %v, want %v", i, path.TMS[i], want)
		}
	}
	if m.State() != StateShiftIR {
		t.Fatalf("State() = %s, want %s", m.State(), StateShiftIR)
	}

	back, err := m.GoTo(StateRunTestIdle)
	if err != nil {
		t.Fatalf("GoTo RunTestIdle returned error: %v", err)
	}
	// ShiftIR -> Exit1IR -> UpdateIR -> RunTestIdle
	if len(back.TMS) != 3 || m.State() != StateRunTestIdle {
		t.Fatalf("return path %v ended in %s", back.TMS, m.State())
	}
}

func TestPathReachesEveryState(t *testing.T) {
	for _, from := range States() {
		for _, to := range States() {
			seq, err := Path(from, to)
			if err != nil {
				t.Fatalf("Path(%s, %s): %v", from, to, err)
			}
			s := from
			for i, bit := range seq.TMS {
				s = NextState(s, bit)
				if seq.States[i+1] != s {
					t.Fatalf("Path(%s, %s) state %d = %s, replay gives %s", from, to, i+1, seq.States[i+1], s)
				}
			}
			if s != to {
				t.Fatalf("Path(%s, %s) ends in %s", from, to, s)
			}
			if len(seq.TMS) > 8 {
				t.Fatalf("Path(%s, %s) length %d is longer than the TAP diameter", from, to, len(seq.TMS))
			}
		}
	}
}

func TestPathRejectsInvalidStates(t *testing.T) {
	if _, err := Path(State(99), StateShiftDR); err == nil {
		t.Fatal("Path accepted invalid start state")
	}
	if _, err := Path(StateShiftDR, State(99)); err == nil {
		t.Fatal("Path accepted invalid target state")
	}
}

func TestParseState(t *testing.T) {
	cases := map[string]State{
		"ShiftDR":        StateShiftDR,
		"shift-ir":       StateShiftIR,
		"run_test/idle":  StateRunTestIdle,
		"TESTLOGICRESET": StateTestLogicReset,
		"pause dr":       StatePauseDR,
	}
	for in, want := range cases {
		got, err := ParseState(in)
		if err != nil {
			t.Fatalf("ParseState(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseState(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseState("shift"); err == nil {
		t.Fatal("ParseState accepted ambiguous name")
	}
	if got := State(42).String(); got != "State(42)" {
		t.Fatalf("String() of invalid state = %q", got)
	}
}
