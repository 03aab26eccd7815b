package state

import "go.uber.org/zap"

// SetupComputedState derives resolvedTheme from theme and systemTheme and
// keeps it current:
//   - resolvedTheme = systemTheme when theme is "auto", otherwise theme
//
// The returned subscriptions should be released on shutdown.
func (s *Store) SetupComputedState() []Subscription {
	s.recomputeResolvedTheme()

	recompute := func(_, _ any, key string) {
		s.logger.Debug("Recomputing resolved theme", zap.String("trigger", key))
		s.recomputeResolvedTheme()
	}

	subs := []Subscription{
		s.Subscribe(KeyTheme, recompute),
		s.Subscribe(KeySystemTheme, recompute),
	}

	s.logger.Info("Computed state initialized",
		zap.Strings("variables", []string{KeyResolvedTheme}))

	return subs
}

func (s *Store) recomputeResolvedTheme() {
	resolved := s.Theme()
	if resolved == "auto" {
		resolved = s.GetString(KeySystemTheme, "light")
	}
	s.Set(KeyResolvedTheme, resolved)
}
