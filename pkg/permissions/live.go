package permissions

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// LiveCatalog holds the catalog currently in effect and swaps it atomically
// when the definition file changes on disk.
type LiveCatalog struct {
	current atomic.Pointer[Catalog]

	mu        sync.Mutex
	listeners []func(*Catalog)
	log       *logrus.Logger
}

// NewLiveCatalog starts with initial
func NewLiveCatalog(initial *Catalog, log *logrus.Logger) *LiveCatalog {
	if log == nil {
		log = logrus.New()
	}
	lc := &LiveCatalog{log: log}
	lc.current.Store(initial)
	return lc
}

// Catalog implements CatalogProvider
func (lc *LiveCatalog) Catalog() *Catalog {
	return lc.current.Load()
}

// OnReload registers fn to be called after every successful swap
func (lc *LiveCatalog) OnReload(fn func(*Catalog)) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.listeners = append(lc.listeners, fn)
}

// Replace installs c and notifies listeners
func (lc *LiveCatalog) Replace(c *Catalog) {
	lc.current.Store(c)

	lc.mu.Lock()
	listeners := append([]func(*Catalog){}, lc.listeners...)
	lc.mu.Unlock()

	for _, fn := range listeners {
		fn(c)
	}
}

// Reload parses path and installs the result. A parse failure keeps the
// previous catalog.
func (lc *LiveCatalog) Reload(path string) error {
	c, err := LoadCatalogFile(path)
	if err != nil {
		return err
	}
	lc.Replace(c)
	lc.log.WithFields(logrus.Fields{
		"path":        path,
		"permissions": c.Len(),
		"modules":     len(c.Modules()),
	}).Info("permission catalog reloaded")
	return nil
}

// Watch reloads the catalog whenever path is written or recreated, until ctx
// is cancelled. The parent directory is watched so editors that replace the
// file by rename are picked up.
func (lc *LiveCatalog) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	lc.log.WithField("path", abs).Info("watching permission catalog")

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := lc.Reload(abs); err != nil {
					lc.log.WithError(err).WithField("path", abs).Error("failed to reload permission catalog")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				lc.log.WithError(err).Warn("catalog watcher error")
			}
		}
	}()

	return nil
}
