// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch monitors a configuration file and replaces the store's value on
// every successful reload. Parse failures keep the previous configuration
// active and are logged. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, store *Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log.Debugf("Watching config file %s", path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				log.Warnf("Config reload failed, keeping previous config: %v", err)
				continue
			}
			store.Replace(cfg)
			log.Infof("Config reloaded from %s", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("Config watcher error: %v", err)
		}
	}
}
