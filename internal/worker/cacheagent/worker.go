// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cacheagent runs a caching agent on a fixed schedule,
// applying each pass's result to the shared cache store.
package cacheagent

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"gopkg.in/tomb.v2"

	"github.com/skycache/skycache/internal/agent"
	"github.com/skycache/skycache/internal/cachestore"
	"github.com/skycache/skycache/internal/metrics"
)

var logger = loggo.GetLogger("skycache.worker.cacheagent")

const defaultInterval = time.Minute

// Config encapsulates the configuration options for a cache agent
// worker.
type Config struct {
	Agent    agent.Agent
	Store    cachestore.Store
	Clock    clock.Clock
	Interval time.Duration

	// Metrics may be nil when the daemon runs without a metrics
	// endpoint.
	Metrics *metrics.Collector
}

// Validate ensures that the config values are valid.
func (c *Config) Validate() error {
	if c.Agent == nil {
		return errors.NotValidf("missing Agent")
	}
	if c.Store == nil {
		return errors.NotValidf("missing Store")
	}
	if c.Clock == nil {
		return errors.NotValidf("missing Clock")
	}
	return nil
}

// Worker drives one caching agent. A failed pass is logged and retried
// at the next tick; only a dying tomb stops the loop.
type Worker struct {
	tomb tomb.Tomb

	config Config
}

// NewWorker starts a worker running the configured agent every
// Interval.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	w := &Worker{config: config}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.tomb.Wait()
}

func (w *Worker) loop() error {
	timer := w.config.Clock.NewTimer(w.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying

		case <-timer.Chan():
			if err := w.runPass(); err != nil {
				logger.Errorf("%s: caching pass failed: %v", w.config.Agent.Name(), err)
				if w.config.Metrics != nil {
					w.config.Metrics.PassError(w.config.Agent.Name())
				}
			}
			timer.Reset(w.config.Interval)
		}
	}
}

func (w *Worker) runPass() error {
	ctx := w.tomb.Context(context.Background())
	start := w.config.Clock.Now()

	result, err := w.config.Agent.LoadData(ctx)
	if err != nil {
		return errors.Annotate(err, "loading data")
	}
	if err := w.config.Store.Put(ctx, result); err != nil {
		return errors.Annotate(err, "applying result")
	}

	elapsed := w.config.Clock.Now().Sub(start)
	if w.config.Metrics != nil {
		w.config.Metrics.ObservePass(w.config.Agent.Name(), elapsed, result)
	}
	logger.Debugf("%s: pass complete in %v, %d namespaces",
		w.config.Agent.Name(), elapsed, len(result.Namespaces))
	return nil
}
