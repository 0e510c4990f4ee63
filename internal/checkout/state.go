package checkout

import "log/slog"

// State is the position of one checkout attempt in its state machine.
type State string

const (
	StateStarted            State = "started"
	StateLinesValidated     State = "lines_validated"
	StateInventoryCommitted State = "inventory_committed"
	StateOrderCreated       State = "order_created"
	StateCartCleared        State = "cart_cleared"
	StateAborted            State = "aborted"
)

var validTransitions = map[State][]State{
	StateStarted:            {StateLinesValidated, StateAborted},
	StateLinesValidated:     {StateInventoryCommitted, StateAborted},
	StateInventoryCommitted: {StateOrderCreated, StateAborted},
	StateOrderCreated:       {StateCartCleared},
	StateCartCleared:        {},
	StateAborted:            {},
}

func (s State) CanTransitionTo(target State) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s State) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// attempt tracks one run of the workflow for logging.
type attempt struct {
	id     string
	state  State
	logger *slog.Logger
}

func (a *attempt) advance(to State) {
	if !a.state.CanTransitionTo(to) {
		a.logger.Error("invalid checkout state transition", "from", a.state, "to", to)
		return
	}
	a.logger.Debug("checkout state", "from", a.state, "to", to)
	a.state = to
}

// abort moves the attempt to aborted and returns err unchanged.
func (a *attempt) abort(err error) error {
	if a.state.IsTerminal() {
		return err
	}
	a.logger.Info("checkout aborted", "from", a.state, "error", err)
	a.state = StateAborted
	return err
}
