// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package agent

import (
	"context"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/skycache/skycache/core/cache"
	"github.com/skycache/skycache/internal/cachestore"
	"github.com/skycache/skycache/internal/provider"
)

// LoadBalancerSupportAgent mirrors the vips and healthMonitors
// namespaces for one (account, region). These are the cached
// dependencies the load-balancer agent's relationship resolution reads.
type LoadBalancerSupportAgent struct {
	account string
	region  string
	store   cachestore.Store
	clock   clock.Clock
	lb      provider.LoadBalancerClient
}

// NewLoadBalancerSupportAgent returns a vip/health-monitor caching
// agent.
func NewLoadBalancerSupportAgent(cfg Config) (*LoadBalancerSupportAgent, error) {
	if err := cfg.validate(true, false); err != nil {
		return nil, errors.Trace(err)
	}
	return &LoadBalancerSupportAgent{
		account: cfg.Account,
		region:  cfg.Region,
		store:   cfg.Store,
		clock:   cfg.Clock,
		lb:      cfg.LoadBalancers,
	}, nil
}

// Name implements Agent.
func (a *LoadBalancerSupportAgent) Name() string {
	return agentName(a.account, a.region, "loadBalancerSupport")
}

// Namespaces implements Agent.
func (a *LoadBalancerSupportAgent) Namespaces() []string {
	return []string{cache.NamespaceVips, cache.NamespaceHealthMonitors}
}

// LoadData implements Agent.
func (a *LoadBalancerSupportAgent) LoadData(ctx context.Context) (*cache.Result, error) {
	builder := cache.NewResultBuilder(a.clock.Now())

	vips, err := a.lb.ListVips(ctx, a.region)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ns := builder.Namespace(cache.NamespaceVips)
	for _, v := range vips {
		name := v.Name
		if name == "" {
			name = v.ID
		}
		ns.Keep(cache.NewKey(cache.NamespaceVips, name, v.ID, a.account, a.region), cache.Attributes{
			"id":           v.ID,
			"name":         v.Name,
			"address":      v.Address,
			"status":       v.Status,
			"protocol":     v.Protocol,
			"protocolPort": v.ProtocolPort,
			"subnetId":     v.SubnetID,
			"poolId":       v.PoolID,
		})
	}

	monitors, err := a.lb.ListHealthMonitors(ctx, a.region)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ns = builder.Namespace(cache.NamespaceHealthMonitors)
	for _, m := range monitors {
		ns.Keep(cache.NewKey(cache.NamespaceHealthMonitors, m.ID, m.ID, a.account, a.region), cache.Attributes{
			"id":         m.ID,
			"type":       m.Type,
			"delay":      m.Delay,
			"timeout":    m.Timeout,
			"maxRetries": m.MaxRetries,
		})
	}

	for _, namespace := range a.Namespaces() {
		if err := evictVanished(ctx, a.store, builder, namespace, a.account, a.region); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return builder.Build(), nil
}
