// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router:\n  route_budget_ms: 100\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, store)
	}()

	// Give the watcher a moment to attach before the write.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("router:\n  route_budget_ms: 250\n"), 0o644))

	require.Eventually(t, func() bool {
		return store.Snapshot().Router.RouteBudgetMs == 250
	}, 3*time.Second, 20*time.Millisecond, "store never picked up the rewritten config")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestWatchKeepsPreviousConfigOnParseFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("router:\n  route_budget_ms: 100\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	store := NewStore(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = Watch(ctx, path, store) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("router: ["), 0o644))

	// The broken write must not clobber the active config.
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int64(100), store.Snapshot().Router.RouteBudgetMs)
}

func TestWatchMissingFile(t *testing.T) {
	store := NewStore(Config{})
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), store)
	require.Error(t, err)
}
