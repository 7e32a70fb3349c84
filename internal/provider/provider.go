// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package provider defines the cloud-facing client interfaces the
// caching agents consume, and the provider-side resource models they
// return. Implementations signal a missing resource with a
// errors.NotFound satisfying error, distinct from transport or auth
// failures; callers treat not-found as a legitimate cache-evict signal.
package provider

import (
	"context"
)

// Pool is a provider load-balancer pool, the top-level resource of the
// load-balancer namespace.
type Pool struct {
	ID          string
	Name        string
	Description string
	Status      string
	Protocol    string
	Method      string
	VipID       string
	SubnetID    string
	MonitorIDs  []string
}

// Vip is the virtual IP fronting a pool.
type Vip struct {
	ID           string
	Name         string
	Address      string
	Status       string
	Protocol     string
	ProtocolPort int
	SubnetID     string
	PoolID       string
}

// HealthMonitor probes the members of a pool.
type HealthMonitor struct {
	ID         string
	Type       string
	Delay      int
	Timeout    int
	MaxRetries int
}

// Network is a provider network.
type Network struct {
	ID        string
	Name      string
	External  bool
	SubnetIDs []string
}

// Subnet is a provider subnet.
type Subnet struct {
	ID        string
	Name      string
	NetworkID string
	CIDR      string
}

// Port is a provider port. LBaaS names vip ports after the vip id,
// which is how relationship resolution ties a vip to its port.
type Port struct {
	ID        string
	Name      string
	NetworkID string
	Status    string
}

// FloatingIP is a provider floating IP; PortID ties it to the port it
// is bound to, empty when unbound.
type FloatingIP struct {
	ID        string
	IP        string
	FixedIP   string
	PortID    string
	NetworkID string
}

// Server is the compute-side view of an instance, used only for
// existence checks.
type Server struct {
	ID     string
	Name   string
	Status string
}

// LoadBalancerClient lists and fetches load-balancer resources for one
// region.
type LoadBalancerClient interface {
	// ListPools returns every pool in the region.
	ListPools(ctx context.Context, region string) ([]Pool, error)
	// ListVips returns every vip in the region.
	ListVips(ctx context.Context, region string) ([]Vip, error)
	// ListHealthMonitors returns every health monitor in the region.
	ListHealthMonitors(ctx context.Context, region string) ([]HealthMonitor, error)
	// GetPoolByName returns the pool with the given name, or NotFound.
	// An ambiguous name (multiple matches) is also reported as NotFound.
	GetPoolByName(ctx context.Context, region, name string) (*Pool, error)
	// GetVip returns the vip with the given id, or NotFound.
	GetVip(ctx context.Context, region, id string) (*Vip, error)
	// GetHealthMonitor returns the health monitor with the given id, or
	// NotFound.
	GetHealthMonitor(ctx context.Context, region, id string) (*HealthMonitor, error)
}

// NetworkingClient lists the network-infrastructure resources the
// infrastructure caching agent mirrors into the cache.
type NetworkingClient interface {
	ListNetworks(ctx context.Context, region string) ([]Network, error)
	ListSubnets(ctx context.Context, region string) ([]Subnet, error)
	ListPorts(ctx context.Context, region string) ([]Port, error)
	ListFloatingIPs(ctx context.Context, region string) ([]FloatingIP, error)
}

// ComputeClient exposes the instance existence check used when
// disabling discovery for instances of a vanished server group.
type ComputeClient interface {
	// GetServer returns the server with the given id, or NotFound.
	GetServer(ctx context.Context, region, id string) (*Server, error)
}
