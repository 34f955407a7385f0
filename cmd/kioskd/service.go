package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskd/internal/config"
	"github.com/eliteGoblin/focusd/kioskd/internal/daemon"
)

const stopTimeout = 10 * time.Second

// program adapts the daemon to the service manager. Start must not block.
type program struct {
	cfg    *config.Config
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	d, err := daemon.Bootstrap(p.cfg, Version, p.logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)

	go func() {
		err := d.Run(ctx)
		if cerr := d.Close(); cerr != nil {
			p.logger.Warn("failed to close store", zap.Error(cerr))
		}
		if err != nil && ctx.Err() == nil {
			// Lost ownership or failed to start: let the service manager restart us.
			p.logger.Fatal("kioskd exited", zap.Error(err))
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	select {
	case err := <-p.done:
		return err
	case <-time.After(stopTimeout):
		return errors.New("timed out waiting for kioskd to stop")
	}
}

// newService binds the program to the host service manager. The installed
// unit runs "kioskd run --config <path>".
func newService(cfg *config.Config, cfgPath string, logger *zap.Logger) (service.Service, error) {
	svcConfig := &service.Config{
		Name:        "kioskd",
		DisplayName: "kioskd",
		Description: "Keeps the kiosk application in the foreground",
		Arguments:   []string{"run", "--config", cfgPath},
		Option: service.KeyValue{
			"Restart": "always",
		},
	}

	s, err := service.New(&program{cfg: cfg, logger: logger}, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return s, nil
}
