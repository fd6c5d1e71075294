package recovery

import (
	"fmt"
	"sync"

	"github.com/sfdeloach/pdf-tools/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy implements a best-effort recovery strategy. Every problem
// is recorded and reported to the logger; parsing continues.
type LenientStrategy struct {
	Errors    []error
	Locations []Location
	Logger    observability.Logger

	mu sync.Mutex
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

// NewLoggingStrategy returns a lenient strategy that also logs every
// recovered problem at warn level.
func NewLoggingStrategy(logger observability.Logger) *LenientStrategy {
	return &LenientStrategy{Logger: logger}
}

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.mu.Lock()
	s.Errors = append(s.Errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.Locations = append(s.Locations, location)
	s.mu.Unlock()
	if s.Logger != nil {
		s.Logger.Warn("recovered from malformed input",
			observability.String("component", location.Component),
			observability.Int64("offset", location.ByteOffset),
			observability.Int("object", location.ObjectNum),
			observability.Error("error", err),
		)
	}
	return ActionWarn
}

// Recorded returns a copy of the errors collected so far.
func (s *LenientStrategy) Recorded() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.Errors...)
}
