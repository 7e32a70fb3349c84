// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package agent implements the caching agents: scheduled full-scan
// passes that rebuild the authoritative cache slice for one
// (account, region), and the on-demand refresh handler that forces an
// immediate refresh of a single load balancer through the same
// reconciliation routine.
package agent

import (
	"context"
	"fmt"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/skycache/skycache/core/cache"
	"github.com/skycache/skycache/internal/cachestore"
	"github.com/skycache/skycache/internal/provider"
)

var logger = loggo.GetLogger("skycache.agent")

// Agent is one scheduled caching agent. LoadData runs a full scan and
// returns the frozen reconciliation result for the scheduler to apply.
type Agent interface {
	// Name identifies the agent in logs and metrics.
	Name() string
	// Namespaces lists the cache namespaces the agent is authoritative
	// for.
	Namespaces() []string
	// LoadData runs one scheduled pass. An error means the pass could
	// not list its top-level resources and produced nothing; the
	// scheduler retries on its own interval.
	LoadData(ctx context.Context) (*cache.Result, error)
}

// Config is the common construction surface of the caching agents.
// Everything is explicit; there is no conditional wiring.
type Config struct {
	Account       string
	Region        string
	Store         cachestore.Store
	Clock         clock.Clock
	LoadBalancers provider.LoadBalancerClient
	Networking    provider.NetworkingClient
}

func (c Config) validate(needLB, needNet bool) error {
	if c.Account == "" || c.Region == "" {
		return errors.NotValidf("agent config without account/region")
	}
	if c.Store == nil {
		return errors.NotValidf("agent config without store")
	}
	if c.Clock == nil {
		return errors.NotValidf("agent config without clock")
	}
	if needLB && c.LoadBalancers == nil {
		return errors.NotValidf("agent config without load balancer client")
	}
	if needNet && c.Networking == nil {
		return errors.NotValidf("agent config without networking client")
	}
	return nil
}

// evictVanished stages eviction of every cached key in the namespace
// and (account, region) scope that the pass did not keep. Writes stay
// qualified by explicit key; the namespace is never replaced wholesale.
func evictVanished(ctx context.Context, store cachestore.Store, builder *cache.ResultBuilder, ns, account, region string) error {
	pattern := cache.Key{
		Namespace: ns,
		Name:      cache.Wildcard,
		ID:        cache.Wildcard,
		Account:   account,
		Region:    region,
	}
	existing, err := store.FilterIdentifiers(ctx, ns, pattern)
	if err != nil {
		return errors.Trace(err)
	}
	nb := builder.Namespace(ns)
	for _, key := range existing {
		nb.EvictIfNotKept(key)
	}
	return nil
}

// agentName renders the canonical agent name.
func agentName(account, region, kind string) string {
	return fmt.Sprintf("%s/%s/%s", account, region, kind)
}
