package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// SignalDirName is the inbox directory under the data directory.
const SignalDirName = "signals"

// SignalInbox watches a directory for signal files (excursion-start,
// excursion-end, resume) and hands each one to the kiosk owner as a lock
// event. Files are removed once consumed.
type SignalInbox struct {
	dir     string
	handler func(domain.LockEvent)
	logger  *zap.Logger
}

// NewSignalInbox creates an inbox for dir.
func NewSignalInbox(dir string, handler func(domain.LockEvent), logger *zap.Logger) *SignalInbox {
	return &SignalInbox{dir: dir, handler: handler, logger: logger}
}

// Dir returns the watched directory.
func (s *SignalInbox) Dir() string {
	return s.dir
}

// Run watches the inbox. Blocks until ctx is cancelled.
func (s *SignalInbox) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create signal inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.dir); err != nil {
		return err
	}

	// Signals written before we started watching.
	s.drain()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			s.consume(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("signal inbox watch error", zap.Error(err))
		}
	}
}

func (s *SignalInbox) drain() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			s.consume(filepath.Join(s.dir, e.Name()))
		}
	}
}

func (s *SignalInbox) consume(path string) {
	name := filepath.Base(path)
	ev, ok := domain.ParseLockEvent(name)
	if !ok {
		return
	}
	if err := os.Remove(path); err != nil {
		// Already consumed by an earlier Create/Write pair.
		if os.IsNotExist(err) {
			return
		}
		s.logger.Warn("failed to remove signal file", zap.String("path", path), zap.Error(err))
	}
	s.logger.Debug("signal received", zap.String("signal", name))
	s.handler(ev)
}

// WriteSignal drops a signal file into an inbox directory.
func WriteSignal(dir string, ev domain.LockEvent) error {
	name := ev.SignalName()
	if name == "" {
		return fmt.Errorf("event %s cannot be signalled", ev)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create signal inbox: %w", err)
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	return os.WriteFile(filepath.Join(dir, name), stamp, 0600)
}
