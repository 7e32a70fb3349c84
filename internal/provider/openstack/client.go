// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package openstack implements the provider client interfaces on top of
// goose. Networks, subnets and ports come through the typed neutron
// client; floating IPs and the LBaaS resources are fetched through the
// authenticating client's raw request path because goose carries no
// typed bindings for them.
package openstack

import (
	"context"
	"net/http"

	"github.com/go-goose/goose/v5/client"
	gooseerrors "github.com/go-goose/goose/v5/errors"
	goosehttp "github.com/go-goose/goose/v5/http"
	"github.com/go-goose/goose/v5/identity"
	"github.com/go-goose/goose/v5/neutron"
	"github.com/go-goose/goose/v5/nova"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/skycache/skycache/internal/compute"
	"github.com/skycache/skycache/internal/provider"
)

var logger = loggo.GetLogger("skycache.provider.openstack")

const (
	networkServiceType = "network"
	networkAPIVersion  = "v2.0"

	computeServiceType = "compute"
	computeAPIVersion  = "v2"
)

// Credentials carries everything needed to authenticate one account
// against keystone.
type Credentials struct {
	AuthURL       string
	Username      string
	Password      string
	TenantName    string
	DomainName    string
	UserDomain    string
	ProjectDomain string
	Region        string
	// V3 selects the keystone v3 auth flow; v2 userpass otherwise.
	V3 bool
}

// Client implements provider.LoadBalancerClient, NetworkingClient and
// ComputeClient for one OpenStack account. A Client is safe for
// concurrent use; goose serialises token refresh internally.
type Client struct {
	auth    client.AuthenticatingClient
	neutron *neutron.Client
	nova    *nova.Client
}

var (
	_ provider.LoadBalancerClient = (*Client)(nil)
	_ provider.NetworkingClient   = (*Client)(nil)
	_ provider.ComputeClient      = (*Client)(nil)
	_ compute.GroupClient         = (*Client)(nil)
)

// NewClient authenticates against the given credentials and returns a
// ready client.
func NewClient(creds Credentials) (*Client, error) {
	gooseCreds := identity.Credentials{
		URL:           creds.AuthURL,
		User:          creds.Username,
		Secrets:       creds.Password,
		TenantName:    creds.TenantName,
		Region:        creds.Region,
		Domain:        creds.DomainName,
		UserDomain:    creds.UserDomain,
		ProjectDomain: creds.ProjectDomain,
	}
	mode := identity.AuthUserPass
	if creds.V3 {
		mode = identity.AuthUserPassV3
	}
	auth := client.NewClient(&gooseCreds, mode, nil)
	if err := auth.Authenticate(); err != nil {
		return nil, errors.Annotate(err, "authenticating against keystone")
	}
	return &Client{
		auth:    auth,
		neutron: neutron.New(auth),
		nova:    nova.New(auth),
	}, nil
}

// ListNetworks implements provider.NetworkingClient.
func (c *Client) ListNetworks(ctx context.Context, region string) ([]provider.Network, error) {
	networks, err := c.neutron.ListNetworksV2()
	if err != nil {
		return nil, errors.Annotatef(err, "listing networks in %q", region)
	}
	out := make([]provider.Network, len(networks))
	for i, n := range networks {
		out[i] = provider.Network{
			ID:        n.Id,
			Name:      n.Name,
			External:  n.External,
			SubnetIDs: n.SubnetIds,
		}
	}
	return out, nil
}

// ListSubnets implements provider.NetworkingClient.
func (c *Client) ListSubnets(ctx context.Context, region string) ([]provider.Subnet, error) {
	subnets, err := c.neutron.ListSubnetsV2()
	if err != nil {
		return nil, errors.Annotatef(err, "listing subnets in %q", region)
	}
	out := make([]provider.Subnet, len(subnets))
	for i, s := range subnets {
		out[i] = provider.Subnet{
			ID:        s.Id,
			Name:      s.Name,
			NetworkID: s.NetworkId,
			CIDR:      s.Cidr,
		}
	}
	return out, nil
}

// ListPorts implements provider.NetworkingClient.
func (c *Client) ListPorts(ctx context.Context, region string) ([]provider.Port, error) {
	ports, err := c.neutron.ListPortsV2()
	if err != nil {
		return nil, errors.Annotatef(err, "listing ports in %q", region)
	}
	out := make([]provider.Port, len(ports))
	for i, p := range ports {
		out[i] = provider.Port{
			ID:        p.Id,
			Name:      p.Name,
			NetworkID: p.NetworkId,
			Status:    p.Status,
		}
	}
	return out, nil
}

// wire types for the resources goose has no typed bindings for.

type wireFloatingIP struct {
	ID        string `json:"id"`
	IP        string `json:"floating_ip_address"`
	FixedIP   string `json:"fixed_ip_address"`
	PortID    string `json:"port_id"`
	NetworkID string `json:"floating_network_id"`
}

type wirePool struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Protocol    string   `json:"protocol"`
	Method      string   `json:"lb_method"`
	VipID       string   `json:"vip_id"`
	SubnetID    string   `json:"subnet_id"`
	MonitorIDs  []string `json:"health_monitors"`
}

type wireVip struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Status       string `json:"status"`
	Protocol     string `json:"protocol"`
	ProtocolPort int    `json:"protocol_port"`
	SubnetID     string `json:"subnet_id"`
	PoolID       string `json:"pool_id"`
}

type wireMonitor struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Delay      int    `json:"delay"`
	Timeout    int    `json:"timeout"`
	MaxRetries int    `json:"max_retries"`
}

// ListFloatingIPs implements provider.NetworkingClient.
func (c *Client) ListFloatingIPs(ctx context.Context, region string) ([]provider.FloatingIP, error) {
	var resp struct {
		FloatingIPs []wireFloatingIP `json:"floatingips"`
	}
	if err := c.get("floatingips", &resp); err != nil {
		return nil, errors.Annotatef(err, "listing floating ips in %q", region)
	}
	out := make([]provider.FloatingIP, len(resp.FloatingIPs))
	for i, f := range resp.FloatingIPs {
		out[i] = provider.FloatingIP{
			ID:        f.ID,
			IP:        f.IP,
			FixedIP:   f.FixedIP,
			PortID:    f.PortID,
			NetworkID: f.NetworkID,
		}
	}
	return out, nil
}

// ListPools implements provider.LoadBalancerClient.
func (c *Client) ListPools(ctx context.Context, region string) ([]provider.Pool, error) {
	var resp struct {
		Pools []wirePool `json:"pools"`
	}
	if err := c.get("lb/pools", &resp); err != nil {
		return nil, errors.Annotatef(err, "listing load balancer pools in %q", region)
	}
	pools := make([]provider.Pool, len(resp.Pools))
	for i, p := range resp.Pools {
		pools[i] = poolFromWire(p)
	}
	return pools, nil
}

// ListVips implements provider.LoadBalancerClient.
func (c *Client) ListVips(ctx context.Context, region string) ([]provider.Vip, error) {
	var resp struct {
		Vips []wireVip `json:"vips"`
	}
	if err := c.get("lb/vips", &resp); err != nil {
		return nil, errors.Annotatef(err, "listing vips in %q", region)
	}
	vips := make([]provider.Vip, len(resp.Vips))
	for i, v := range resp.Vips {
		vips[i] = provider.Vip{
			ID:           v.ID,
			Name:         v.Name,
			Address:      v.Address,
			Status:       v.Status,
			Protocol:     v.Protocol,
			ProtocolPort: v.ProtocolPort,
			SubnetID:     v.SubnetID,
			PoolID:       v.PoolID,
		}
	}
	return vips, nil
}

// ListHealthMonitors implements provider.LoadBalancerClient.
func (c *Client) ListHealthMonitors(ctx context.Context, region string) ([]provider.HealthMonitor, error) {
	var resp struct {
		Monitors []wireMonitor `json:"health_monitors"`
	}
	if err := c.get("lb/health_monitors", &resp); err != nil {
		return nil, errors.Annotatef(err, "listing health monitors in %q", region)
	}
	monitors := make([]provider.HealthMonitor, len(resp.Monitors))
	for i, m := range resp.Monitors {
		monitors[i] = provider.HealthMonitor{
			ID:         m.ID,
			Type:       m.Type,
			Delay:      m.Delay,
			Timeout:    m.Timeout,
			MaxRetries: m.MaxRetries,
		}
	}
	return monitors, nil
}

// GetPoolByName implements provider.LoadBalancerClient.
func (c *Client) GetPoolByName(ctx context.Context, region, name string) (*provider.Pool, error) {
	pools, err := c.ListPools(ctx, region)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var matches []provider.Pool
	for _, p := range pools {
		if p.Name == name {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, errors.NotFoundf("pool %q in %q", name, region)
	default:
		logger.Warningf("pool name %q is ambiguous (%d matches) in %q", name, len(matches), region)
		return nil, errors.NotFoundf("unambiguous pool %q in %q", name, region)
	}
}

// GetVip implements provider.LoadBalancerClient.
func (c *Client) GetVip(ctx context.Context, region, id string) (*provider.Vip, error) {
	var resp struct {
		Vip wireVip `json:"vip"`
	}
	if err := c.get("lb/vips/"+id, &resp); err != nil {
		if gooseerrors.IsNotFound(errors.Cause(err)) {
			return nil, errors.NotFoundf("vip %q in %q", id, region)
		}
		return nil, errors.Annotatef(err, "fetching vip %q in %q", id, region)
	}
	v := resp.Vip
	return &provider.Vip{
		ID:           v.ID,
		Name:         v.Name,
		Address:      v.Address,
		Status:       v.Status,
		Protocol:     v.Protocol,
		ProtocolPort: v.ProtocolPort,
		SubnetID:     v.SubnetID,
		PoolID:       v.PoolID,
	}, nil
}

// GetHealthMonitor implements provider.LoadBalancerClient.
func (c *Client) GetHealthMonitor(ctx context.Context, region, id string) (*provider.HealthMonitor, error) {
	var resp struct {
		Monitor wireMonitor `json:"health_monitor"`
	}
	if err := c.get("lb/health_monitors/"+id, &resp); err != nil {
		if gooseerrors.IsNotFound(errors.Cause(err)) {
			return nil, errors.NotFoundf("health monitor %q in %q", id, region)
		}
		return nil, errors.Annotatef(err, "fetching health monitor %q in %q", id, region)
	}
	m := resp.Monitor
	return &provider.HealthMonitor{
		ID:         m.ID,
		Type:       m.Type,
		Delay:      m.Delay,
		Timeout:    m.Timeout,
		MaxRetries: m.MaxRetries,
	}, nil
}

// GetServer implements provider.ComputeClient.
func (c *Client) GetServer(ctx context.Context, region, id string) (*provider.Server, error) {
	server, err := c.nova.GetServer(id)
	if err != nil {
		if gooseerrors.IsNotFound(err) {
			return nil, errors.NotFoundf("server %q in %q", id, region)
		}
		return nil, errors.Annotatef(err, "fetching server %q in %q", id, region)
	}
	return &provider.Server{
		ID:     server.Id,
		Name:   server.Name,
		Status: server.Status,
	}, nil
}

type wireServerGroup struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// ServerGroup implements compute.GroupClient. Nova has no lookup by
// group name, only a listing.
func (c *Client) ServerGroup(ctx context.Context, region, name string) (*compute.ServerGroup, error) {
	var resp struct {
		Groups []wireServerGroup `json:"server_groups"`
	}
	if err := c.getService(computeServiceType, computeAPIVersion, "os-server-groups", &resp); err != nil {
		return nil, errors.Annotatef(err, "listing server groups in %q", region)
	}
	for _, g := range resp.Groups {
		if g.Name == name {
			return &compute.ServerGroup{
				Name:        g.Name,
				Region:      region,
				Status:      "ACTIVE",
				InstanceIDs: g.Members,
			}, nil
		}
	}
	return nil, errors.NotFoundf("server group %q in %q", name, region)
}

func (c *Client) get(path string, resp interface{}) error {
	return c.getService(networkServiceType, networkAPIVersion, path, resp)
}

func (c *Client) getService(service, version, path string, resp interface{}) error {
	requestData := goosehttp.RequestData{
		RespValue:      resp,
		ExpectedStatus: []int{http.StatusOK},
	}
	return c.auth.SendRequest("GET", service, version, path, &requestData)
}

func poolFromWire(p wirePool) provider.Pool {
	return provider.Pool{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		Protocol:    p.Protocol,
		Method:      p.Method,
		VipID:       p.VipID,
		SubnetID:    p.SubnetID,
		MonitorIDs:  p.MonitorIDs,
	}
}
