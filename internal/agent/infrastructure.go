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

// InfrastructureAgent mirrors the network-infrastructure namespaces
// (networks, subnets, ports, floating IPs) for one (account, region).
// The load-balancer agent resolves its relationships against the
// entries this agent writes.
type InfrastructureAgent struct {
	account    string
	region     string
	store      cachestore.Store
	clock      clock.Clock
	networking provider.NetworkingClient
}

// NewInfrastructureAgent returns a network-infrastructure caching
// agent.
func NewInfrastructureAgent(cfg Config) (*InfrastructureAgent, error) {
	if err := cfg.validate(false, true); err != nil {
		return nil, errors.Trace(err)
	}
	return &InfrastructureAgent{
		account:    cfg.Account,
		region:     cfg.Region,
		store:      cfg.Store,
		clock:      cfg.Clock,
		networking: cfg.Networking,
	}, nil
}

// Name implements Agent.
func (a *InfrastructureAgent) Name() string {
	return agentName(a.account, a.region, "infrastructure")
}

// Namespaces implements Agent.
func (a *InfrastructureAgent) Namespaces() []string {
	return []string{
		cache.NamespaceNetworks,
		cache.NamespaceSubnets,
		cache.NamespacePorts,
		cache.NamespaceFloatingIPs,
	}
}

// LoadData implements Agent. An error listing any one resource type
// aborts the whole pass: a partial pass would sweep the namespaces it
// failed to list.
func (a *InfrastructureAgent) LoadData(ctx context.Context) (*cache.Result, error) {
	builder := cache.NewResultBuilder(a.clock.Now())

	networks, err := a.networking.ListNetworks(ctx, a.region)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ns := builder.Namespace(cache.NamespaceNetworks)
	for _, n := range networks {
		ns.Keep(a.key(cache.NamespaceNetworks, n.Name, n.ID), cache.Attributes{
			"id":       n.ID,
			"name":     n.Name,
			"external": n.External,
		})
	}

	subnets, err := a.networking.ListSubnets(ctx, a.region)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ns = builder.Namespace(cache.NamespaceSubnets)
	for _, s := range subnets {
		ns.Keep(a.key(cache.NamespaceSubnets, s.Name, s.ID), cache.Attributes{
			"id":        s.ID,
			"name":      s.Name,
			"networkId": s.NetworkID,
			"cidr":      s.CIDR,
		})
	}

	ports, err := a.networking.ListPorts(ctx, a.region)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ns = builder.Namespace(cache.NamespacePorts)
	for _, p := range ports {
		ns.Keep(a.key(cache.NamespacePorts, p.Name, p.ID), cache.Attributes{
			"id":        p.ID,
			"name":      p.Name,
			"networkId": p.NetworkID,
			"status":    p.Status,
		})
	}

	fips, err := a.networking.ListFloatingIPs(ctx, a.region)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ns = builder.Namespace(cache.NamespaceFloatingIPs)
	for _, f := range fips {
		attrs := cache.Attributes{
			"id": f.ID,
			"ip": f.IP,
		}
		if f.PortID != "" {
			attrs["portId"] = f.PortID
		}
		if f.FixedIP != "" {
			attrs["fixedIp"] = f.FixedIP
		}
		if f.NetworkID != "" {
			attrs["networkId"] = f.NetworkID
		}
		// Floating IPs have no name of their own; key by ip address.
		ns.Keep(a.key(cache.NamespaceFloatingIPs, f.IP, f.ID), attrs)
	}

	for _, namespace := range a.Namespaces() {
		if err := evictVanished(ctx, a.store, builder, namespace, a.account, a.region); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return builder.Build(), nil
}

func (a *InfrastructureAgent) key(ns, name, id string) cache.Key {
	if name == "" {
		name = id
	}
	return cache.NewKey(ns, name, id, a.account, a.region)
}
