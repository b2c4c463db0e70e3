package tap

import (
	"fmt"
	"strings"
)

// State is one of the 16 IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates
)

var stateNames = [numStates]string{
	"TestLogicReset",
	"RunTestIdle",
	"SelectDRScan",
	"CaptureDR",
	"ShiftDR",
	"Exit1DR",
	"PauseDR",
	"Exit2DR",
	"UpdateDR",
	"SelectIRScan",
	"CaptureIR",
	"ShiftIR",
	"Exit1IR",
	"PauseIR",
	"Exit2IR",
	"UpdateIR",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Valid reports whether s names one of the 16 TAP states.
func (s State) Valid() bool {
	return s < numStates
}

// States lists every TAP state in declaration order.
func States() []State {
	out := make([]State, 0, numStates)
	for s := State(0); s < numStates; s++ {
		out = append(out, s)
	}
	return out
}

// ParseState resolves a state name, ignoring case and any '-', '_' or '/'
// separators, so "shift-dr", "ShiftDR" and "run_test/idle" are all accepted.
func ParseState(name string) (State, error) {
	key := normalizeName(name)
	for s := State(0); s < numStates; s++ {
		if normalizeName(stateNames[s]) == key {
			return s, nil
		}
	}
	return 0, fmt.Errorf("tap: unknown state %q", name)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "", "/", "", " ", "").Replace(name))
}

// edges[s][0] is the successor on TMS=0, edges[s][1] on TMS=1.
var edges = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},

	StateSelectDRScan: {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:    {StateShiftDR, StateExit1DR},
	StateShiftDR:      {StateShiftDR, StateExit1DR},
	StateExit1DR:      {StatePauseDR, StateUpdateDR},
	StatePauseDR:      {StatePauseDR, StateExit2DR},
	StateExit2DR:      {StateShiftDR, StateUpdateDR},
	StateUpdateDR:     {StateRunTestIdle, StateSelectDRScan},

	StateSelectIRScan: {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:    {StateShiftIR, StateExit1IR},
	StateShiftIR:      {StateShiftIR, StateExit1IR},
	StateExit1IR:      {StatePauseIR, StateUpdateIR},
	StatePauseIR:      {StatePauseIR, StateExit2IR},
	StateExit2IR:      {StateShiftIR, StateUpdateIR},
	StateUpdateIR:     {StateRunTestIdle, StateSelectDRScan},
}

// NextState returns the state reached from current after one TCK rising edge
// with the given TMS level. An unknown current state is treated as
// Test-Logic-Reset, which is where real silicon lands after power-up.
func NextState(current State, tms bool) State {
	if !current.Valid() {
		current = StateTestLogicReset
	}
	if tms {
		return edges[current][1]
	}
	return edges[current][0]
}

// ResetTMS is the five-clock TMS=1 pattern that forces any TAP into
// Test-Logic-Reset.
var ResetTMS = []bool{true, true, true, true, true}

// Sequence is a TMS pattern together with the states it walks through.
// States[0] is the starting state, so len(States) == len(TMS)+1.
type Sequence struct {
	TMS    []bool
	States []State
}

// End returns the final state of the sequence.
func (s Sequence) End() State {
	return s.States[len(s.States)-1]
}

// StateMachine mirrors the TAP state of the target. It performs no I/O; the
// caller is responsible for clocking the same TMS bits onto the wire.
type StateMachine struct {
	state State
}

// NewStateMachine returns a machine in Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the tracked state.
func (m *StateMachine) State() State {
	return m.state
}

// Clock advances one TCK cycle.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	return m.state
}

// ClockAll advances once per TMS bit and returns the final state.
func (m *StateMachine) ClockAll(tms []bool) State {
	for _, bit := range tms {
		m.Clock(bit)
	}
	return m.state
}

// Reset clocks ResetTMS through the machine and returns the walked sequence.
func (m *StateMachine) Reset() Sequence {
	seq := Sequence{
		TMS:    append([]bool(nil), ResetTMS...),
		States: []State{m.state},
	}
	for _, bit := range ResetTMS {
		seq.States = append(seq.States, m.Clock(bit))
	}
	return seq
}

// GoTo moves the machine along the shortest path to target and returns it.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	seq, err := Path(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	m.ClockAll(seq.TMS)
	return seq, nil
}

// Path finds the shortest TMS pattern leading from one state to another with a
// breadth-first walk of the transition graph. from == to yields an empty
// pattern.
func Path(from, to State) (Sequence, error) {
	if !from.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid start state %d", from)
	}
	if !to.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid target state %d", to)
	}
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	var seen [numStates]bool
	var via [numStates]hop
	seen[from] = true
	queue := []State{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, bit := range []bool{false, true} {
			next := NextState(cur, bit)
			if seen[next] {
				continue
			}
			seen[next] = true
			via[next] = hop{prev: cur, tms: bit}
			if next == to {
				return unwind(from, to, via[:]), nil
			}
			queue = append(queue, next)
		}
	}
	return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}

// hop records how BFS first reached a state.
type hop struct {
	prev State
	tms  bool
}

func unwind(from, to State, via []hop) Sequence {
	var tms []bool
	states := []State{to}
	for s := to; s != from; s = via[s].prev {
		tms = append(tms, via[s].tms)
		states = append(states, via[s].prev)
	}
	for i, j := 0, len(tms)-1; i < j; i, j = i+1, j-1 {
		tms[i], tms[j] = tms[j], tms[i]
	}
	for i, j := 0, len(states)-1; i < j; i, j = i+1, j-1 {
		states[i], states[j] = states[j], states[i]
	}
	return Sequence{TMS: tms, States: states}
}
