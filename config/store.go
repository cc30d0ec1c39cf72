// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"sync/atomic"
)

// Store holds the active configuration and supports atomic wholesale
// replacement. Readers always observe a complete, internally consistent
// Config; there is no partial merge path.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a Store seeded with the given configuration.
// The value is sanitized before it becomes visible.
func NewStore(cfg Config) *Store {
	cfg.Sanitize()
	s := &Store{}
	s.current.Store(&cfg)
	return s
}

// Snapshot returns the active configuration. The returned value is a copy;
// mutating it has no effect on the store.
func (s *Store) Snapshot() Config {
	return *s.current.Load()
}

// Replace swaps in a new configuration after sanitizing it.
func (s *Store) Replace(cfg Config) {
	cfg.Sanitize()
	s.current.Store(&cfg)
}
