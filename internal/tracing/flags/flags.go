package flags

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Component names one instrumentation area that can be toggled at runtime.
type Component string

const (
	Database     Component = "database"
	Messaging    Component = "messaging"
	StateMachine Component = "stateMachine"
	ExternalAPI  Component = "externalApi"
	Reactive     Component = "reactive"
	UseCase      Component = "useCase"
)

// Flags is one consistent set of switches. Readers always see a whole set,
// never a partial update.
type Flags struct {
	Database     bool `yaml:"database" json:"database"`
	Messaging    bool `yaml:"messaging" json:"messaging"`
	StateMachine bool `yaml:"stateMachine" json:"stateMachine"`
	ExternalAPI  bool `yaml:"externalApi" json:"externalApi"`
	Reactive     bool `yaml:"reactive" json:"reactive"`
	UseCase      bool `yaml:"useCase" json:"useCase"`
}

// Defaults enables every area: the subsystem fails open toward more
// observability, not less.
func Defaults() Flags {
	return Flags{
		Database:     true,
		Messaging:    true,
		StateMachine: true,
		ExternalAPI:  true,
		Reactive:     true,
		UseCase:      true,
	}
}

// Store holds the current flag set behind an atomic pointer swap.
type Store struct {
	current atomic.Pointer[Flags]
	logger  *zap.Logger
}

func NewStore(initial Flags, logger *zap.Logger) *Store {
	s := &Store{logger: logger}
	s.current.Store(&initial)
	return s
}

// IsEnabled reports whether the instrumentation area is active. Unknown
// components are disabled.
func (s *Store) IsEnabled(c Component) bool {
	f := s.current.Load()
	switch c {
	case Database:
		return f.Database
	case Messaging:
		return f.Messaging
	case StateMachine:
		return f.StateMachine
	case ExternalAPI:
		return f.ExternalAPI
	case Reactive:
		return f.Reactive
	case UseCase:
		return f.UseCase
	}
	return false
}

// Refresh replaces the entire set atomically.
func (s *Store) Refresh(f Flags) {
	s.current.Store(&f)
	s.logger.Info("Tracing feature flags refreshed",
		zap.Strings("enabled", enabledNames(f)),
		zap.Strings("disabled", disabledNames(f)),
	)
}

// Snapshot returns the flag set current at the time of the call.
func (s *Store) Snapshot() Flags {
	return *s.current.Load()
}

func enabledNames(f Flags) []string {
	var names []string
	for c, on := range componentStates(f) {
		if on {
			names = append(names, string(c))
		}
	}
	return names
}

func disabledNames(f Flags) []string {
	var names []string
	for c, on := range componentStates(f) {
		if !on {
			names = append(names, string(c))
		}
	}
	return names
}

func componentStates(f Flags) map[Component]bool {
	return map[Component]bool{
		Database:     f.Database,
		Messaging:    f.Messaging,
		StateMachine: f.StateMachine,
		ExternalAPI:  f.ExternalAPI,
		Reactive:     f.Reactive,
		UseCase:      f.UseCase,
	}
}
