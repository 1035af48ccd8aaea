package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/enrolliq/internal/domain"
)

var _ domain.TransitionValidator = (*Validator)(nil)

// events is domain.Transitions in looplab/fsm EventDesc form. Every
// lifecycle event has exactly one destination, so transitions sharing an
// event collapse into one EventDesc with multiple sources (archive is
// reachable from draft, recruiting, ongoing and closed).
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	byEvent := make(map[domain.Event]*loopfsm.EventDesc)
	out := make([]loopfsm.EventDesc, 0, len(domain.Transitions))

	for _, t := range domain.Transitions {
		if desc, ok := byEvent[t.Event]; ok {
			desc.Src = append(desc.Src, string(t.Src))
			continue
		}
		out = append(out, loopfsm.EventDesc{
			Name: string(t.Event),
			Src:  []string{string(t.Src)},
			Dst:  string(t.Dst),
		})
		byEvent[t.Event] = &out[len(out)-1]
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// looplab/fsm tracks current state internally, so Apply builds a
// short-lived machine seeded with the offering's status on every call.
type Validator struct{}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks whether event is valid from current and returns the
// destination status, or a domain.TransitionError when it is not allowed.
func (v *Validator) Apply(ctx context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				Event:   event,
				Current: current,
			}
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}
