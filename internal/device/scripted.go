package device

import (
	"context"
	"sync"

	"screenpilot/internal/model"
)

// Scripted is an in-memory Controller for tests and dry runs. It
// replays a queue of observations and records every dispatched action.
type Scripted struct {
	mu sync.Mutex

	// Observations are returned in order; the last one repeats once the
	// queue is exhausted.
	Observations []model.Observation
	// ObserveErr, when set, fails every Observe call.
	ObserveErr error

	// FailVerbs lists verbs whose dispatch reports Success=false.
	FailVerbs map[string]bool
	// DispatchErr, when set, fails every Dispatch call.
	DispatchErr error

	idx        int
	Dispatched []model.Action
}

func (s *Scripted) Observe(ctx context.Context) (model.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ObserveErr != nil {
		return model.Observation{}, s.ObserveErr
	}
	if len(s.Observations) == 0 {
		return model.Observation{App: "com.test.app", Battery: 80}, nil
	}
	obs := s.Observations[s.idx]
	if s.idx < len(s.Observations)-1 {
		s.idx++
	}
	return obs, nil
}

func (s *Scripted) Dispatch(ctx context.Context, action model.Action) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DispatchErr != nil {
		return Outcome{}, s.DispatchErr
	}
	s.Dispatched = append(s.Dispatched, action)
	if s.FailVerbs[action.Verb] {
		return Outcome{Success: false, Detail: "scripted failure"}, nil
	}
	return Outcome{Success: true, Detail: "ok"}, nil
}

func (s *Scripted) Battery(ctx context.Context) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ObserveErr != nil {
		return 0, false, s.ObserveErr
	}
	if len(s.Observations) == 0 {
		return 80, false, nil
	}
	obs := s.Observations[s.idx]
	return obs.Battery, obs.Charging, nil
}
