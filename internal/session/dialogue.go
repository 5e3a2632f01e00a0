package session

import "fmt"

// State is the position of the dialogue state machine.
type State int

const (
	// Idle means no question is outstanding. The next reply is not scored.
	Idle State = iota
	// AwaitingAnswer means a category is active and the next reply answers it.
	AwaitingAnswer
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingAnswer:
		return "awaiting_answer"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "awaiting_answer":
		*s = AwaitingAnswer
	default:
		return fmt.Errorf("unknown dialogue state %q", b)
	}
	return nil
}

// Dialogue is the explicit turn state: where the machine is, which
// category was asked about and which question, if any, is pending.
type Dialogue struct {
	State    State  `json:"state"`
	Category string `json:"category,omitempty"`
	Pending  string `json:"pending,omitempty"`
}

// Step is what a turn decided to say next.
type Step struct {
	Category string // empty when the bot knows no category
	Question string // empty when the category had no material
	Text     string // what is shown to the user
}

// Scores reports whether a reply in this state is scored and answers a
// question.
func (d Dialogue) Scores() bool {
	return d.State == AwaitingAnswer && d.Category != ""
}

// Advance returns the state after the bot says step. Without a category
// the machine stays (or returns to) Idle. A category without material
// keeps the machine awaiting an answer with nothing pending.
func (d Dialogue) Advance(step Step) Dialogue {
	if step.Category == "" {
		return Dialogue{State: Idle}
	}
	return Dialogue{
		State:    AwaitingAnswer,
		Category: step.Category,
		Pending:  step.Question,
	}
}
