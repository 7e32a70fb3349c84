// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package agent

import (
	"context"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/skycache/skycache/core/cache"
	"github.com/skycache/skycache/internal/cachestore"
	"github.com/skycache/skycache/internal/provider"
)

// LoadBalancerAgent is the scheduled caching agent for the
// loadBalancers namespace of one (account, region). Each pass lists
// every pool from the provider, resolves the pool's dependent objects
// from already-cached data, folds in any newer on-demand refreshes, and
// sweeps vanished pools.
type LoadBalancerAgent struct {
	account  string
	region   string
	store    cachestore.Store
	clock    clock.Clock
	lb       provider.LoadBalancerClient
	onDemand OnDemandStore
}

// NewLoadBalancerAgent returns a load-balancer caching agent.
func NewLoadBalancerAgent(cfg Config) (*LoadBalancerAgent, error) {
	if err := cfg.validate(true, false); err != nil {
		return nil, errors.Trace(err)
	}
	return &LoadBalancerAgent{
		account:  cfg.Account,
		region:   cfg.Region,
		store:    cfg.Store,
		clock:    cfg.Clock,
		lb:       cfg.LoadBalancers,
		onDemand: NewOnDemandStore(cfg.Store, cache.NamespaceLoadBalancers),
	}, nil
}

// Name implements Agent.
func (a *LoadBalancerAgent) Name() string {
	return agentName(a.account, a.region, "loadBalancers")
}

// Account is the account this agent is scoped to.
func (a *LoadBalancerAgent) Account() string {
	return a.account
}

// Region is the region this agent is scoped to.
func (a *LoadBalancerAgent) Region() string {
	return a.region
}

// Namespaces implements Agent.
func (a *LoadBalancerAgent) Namespaces() []string {
	return []string{cache.NamespaceLoadBalancers, cache.NamespaceOnDemand}
}

// LoadData implements Agent. Errors listing the pool set abort the
// pass; every per-pool dependency lookup degrades to an unset field
// instead.
func (a *LoadBalancerAgent) LoadData(ctx context.Context) (*cache.Result, error) {
	start := a.clock.Now()
	pools, err := a.lb.ListPools(ctx, a.region)
	if err != nil {
		return nil, errors.Annotatef(err, "listing pools for %s", a.Name())
	}

	pending, err := a.onDemand.Pending(ctx, a.account, a.region)
	if err != nil {
		return nil, errors.Trace(err)
	}

	builder := cache.NewResultBuilder(start)
	builder.SetOnDemandRecords(pending, a.clock.Now())

	ns := builder.Namespace(cache.NamespaceLoadBalancers)
	for _, pool := range pools {
		key := a.poolKey(pool.Name, pool.ID)
		if builder.ShouldUseOnDemandData(key) {
			// Someone refreshed this pool on demand after the scan
			// started; their data is newer than our listing.
			logger.Debugf("%s: using on-demand data for %q", a.Name(), key)
			builder.MoveOnDemandDataToNamespace(cache.NamespaceLoadBalancers, key)
			continue
		}
		ns.Keep(key, a.poolAttributes(ctx, pool))
	}
	// A pool refreshed on demand after the scan started may not be in
	// the listing at all (created mid-scan); its on-demand data is
	// still authoritative and must not be swept below.
	for key := range pending {
		if builder.ShouldUseOnDemandData(key) {
			builder.MoveOnDemandDataToNamespace(cache.NamespaceLoadBalancers, key)
		}
	}
	logger.Debugf("%s: caching %d load balancers", a.Name(), ns.KeepSize())

	if err := evictVanished(ctx, a.store, builder, cache.NamespaceLoadBalancers, a.account, a.region); err != nil {
		return nil, errors.Trace(err)
	}
	return builder.Build(), nil
}

func (a *LoadBalancerAgent) poolKey(name, id string) cache.Key {
	return cache.NewKey(cache.NamespaceLoadBalancers, name, id, a.account, a.region)
}

// poolAttributes composes the denormalised view of one pool. Every
// dependency lookup is independently nullable: a missing vip, subnet,
// monitor, port, floating IP or network leaves the corresponding
// fields unset and never aborts the pool.
func (a *LoadBalancerAgent) poolAttributes(ctx context.Context, pool provider.Pool) cache.Attributes {
	attrs := cache.Attributes{
		"id":       pool.ID,
		"name":     pool.Name,
		"status":   pool.Status,
		"protocol": pool.Protocol,
		"method":   pool.Method,
	}
	if pool.Description != "" {
		attrs["description"] = pool.Description
	}

	vip := a.findByID(ctx, cache.NamespaceVips, pool.VipID)
	if vip != nil {
		attrs["vipId"] = pool.VipID
		if v, ok := vip.Attributes["address"]; ok {
			attrs["ip"] = v
		}
		if v, ok := vip.Attributes["protocolPort"]; ok {
			attrs["externalPort"] = v
		}
	}

	subnet := a.findByID(ctx, cache.NamespaceSubnets, pool.SubnetID)
	if subnet != nil {
		attrs["subnetId"] = pool.SubnetID
		if v, ok := subnet.Attributes["name"]; ok {
			attrs["subnetName"] = v
		}
	}

	if monitors := a.monitorAttributes(ctx, pool.MonitorIDs); len(monitors) > 0 {
		attrs["healthMonitors"] = monitors
	}

	port := a.findVipPort(ctx, pool.VipID)
	if port != nil {
		attrs["portId"] = port.Key.ID
		if fip := a.findFloatingIP(ctx, port.Key.ID); fip != nil {
			if v, ok := fip.Attributes["ip"]; ok {
				attrs["floatingIp"] = v
			}
			attrs["floatingIpId"] = fip.Key.ID
			if netID, ok := fip.Attributes["networkId"].(string); ok {
				if network := a.findByID(ctx, cache.NamespaceNetworks, netID); network != nil {
					attrs["networkId"] = netID
					if v, ok := network.Attributes["name"]; ok {
						attrs["networkName"] = v
					}
				}
			}
		}
	}
	return attrs
}

// findByID resolves a dependency by id with a pattern scan over the
// namespace. Returns nil when the id is empty, unknown, or the lookup
// fails; failures are logged, never propagated.
func (a *LoadBalancerAgent) findByID(ctx context.Context, ns, id string) *cache.Entry {
	if id == "" {
		return nil
	}
	pattern := cache.Key{Namespace: ns, Name: cache.Wildcard, ID: id, Account: a.account, Region: a.region}
	entries := a.scan(ctx, ns, pattern)
	if len(entries) == 0 {
		return nil
	}
	return entries[0]
}

func (a *LoadBalancerAgent) monitorAttributes(ctx context.Context, ids []string) []cache.Attributes {
	var monitors []cache.Attributes
	for _, id := range ids {
		if entry := a.findByID(ctx, cache.NamespaceHealthMonitors, id); entry != nil {
			monitors = append(monitors, entry.Attributes)
		}
	}
	return monitors
}

// findVipPort scans the cached ports of this scope for the port whose
// name encodes the vip id. LBaaS names a vip's port after the vip, so
// a linear predicate match over the scope is sufficient.
func (a *LoadBalancerAgent) findVipPort(ctx context.Context, vipID string) *cache.Entry {
	if vipID == "" {
		return nil
	}
	pattern := cache.Key{
		Namespace: cache.NamespacePorts,
		Name:      cache.Wildcard,
		ID:        cache.Wildcard,
		Account:   a.account,
		Region:    a.region,
	}
	for _, entry := range a.scan(ctx, cache.NamespacePorts, pattern) {
		if name, ok := entry.Attributes["name"].(string); ok && strings.Contains(name, vipID) {
			return entry
		}
	}
	return nil
}

// findFloatingIP scans the cached floating IPs of this scope for the
// one bound to the given port.
func (a *LoadBalancerAgent) findFloatingIP(ctx context.Context, portID string) *cache.Entry {
	pattern := cache.Key{
		Namespace: cache.NamespaceFloatingIPs,
		Name:      cache.Wildcard,
		ID:        cache.Wildcard,
		Account:   a.account,
		Region:    a.region,
	}
	for _, entry := range a.scan(ctx, cache.NamespaceFloatingIPs, pattern) {
		if id, ok := entry.Attributes["portId"].(string); ok && id == portID {
			return entry
		}
	}
	return nil
}

func (a *LoadBalancerAgent) scan(ctx context.Context, ns string, pattern cache.Key) []*cache.Entry {
	keys, err := a.store.FilterIdentifiers(ctx, ns, pattern)
	if err != nil {
		logger.Warningf("%s: filtering %s identifiers: %v", a.Name(), ns, err)
		return nil
	}
	entries, err := a.store.GetAll(ctx, ns, keys, nil)
	if err != nil {
		logger.Warningf("%s: reading %s entries: %v", a.Name(), ns, err)
		return nil
	}
	return entries
}
