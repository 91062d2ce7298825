package acquire

// State is the acquisition loop's position.
type State int

const (
	Idle State = iota
	Searching
	Provoking
	Acquired
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Provoking:
		return "provoking"
	case Acquired:
		return "acquired"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == Acquired || s == Failed }

// Signal drives a transition.
type Signal int

const (
	Miss      Signal = iota // cache empty or stale
	Found                   // a target is available
	Tick                    // a pause elapsed, try again
	Exhausted               // the current phase has no attempts left
)

func (s Signal) String() string {
	switch s {
	case Miss:
		return "miss"
	case Found:
		return "found"
	case Tick:
		return "tick"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

var transitions = map[State]map[Signal]State{
	Idle:      {Miss: Searching, Found: Acquired},
	Searching: {Found: Acquired, Tick: Searching, Exhausted: Provoking},
	Provoking: {Found: Acquired, Tick: Provoking, Exhausted: Failed},
}

// Next returns the state reached from s on sig. ok is false when the pair
// has no transition; s is returned unchanged in that case.
func Next(s State, sig Signal) (State, bool) {
	to, ok := transitions[s][sig]
	if !ok {
		return s, false
	}
	return to, true
}
