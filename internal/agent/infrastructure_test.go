// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package agent_test

import (
	"context"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/skycache/skycache/core/cache"
	"github.com/skycache/skycache/internal/agent"
	"github.com/skycache/skycache/internal/cachestore/memory"
	"github.com/skycache/skycache/internal/provider"
)

type infrastructureSuite struct {
	jujutesting.IsolationSuite

	clock *testclock.Clock
	store *memory.Store
	net   *fakeNetClient
	agent *agent.InfrastructureAgent
}

var _ = gc.Suite(&infrastructureSuite{})

func (s *infrastructureSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	s.store = memory.NewStore()
	s.net = &fakeNetClient{
		networks: []provider.Network{{ID: "net-1", Name: "public", External: true}},
		subnets:  []provider.Subnet{{ID: "subnet-1", Name: "web", NetworkID: "net-1", CIDR: "10.0.0.0/24"}},
		ports:    []provider.Port{{ID: "port-1", Name: "vip-vip-1", NetworkID: "net-1", Status: "ACTIVE"}},
		fips:     []provider.FloatingIP{{ID: "fip-1", IP: "203.0.113.7", PortID: "port-1", NetworkID: "net-1"}},
	}
	a, err := agent.NewInfrastructureAgent(agent.Config{
		Account:    testAccount,
		Region:     testRegion,
		Store:      s.store,
		Clock:      s.clock,
		Networking: s.net,
	})
	c.Assert(err, jc.ErrorIsNil)
	s.agent = a
}

func (s *infrastructureSuite) TestLoadDataCachesAllNamespaces(c *gc.C) {
	result, err := s.agent.LoadData(context.Background())
	c.Assert(err, jc.ErrorIsNil)

	networks := result.Namespace(cache.NamespaceNetworks).Keep
	c.Assert(networks, gc.HasLen, 1)
	netKey := cache.NewKey(cache.NamespaceNetworks, "public", "net-1", testAccount, testRegion)
	c.Check(networks[netKey]["external"], gc.Equals, true)

	subnets := result.Namespace(cache.NamespaceSubnets).Keep
	subnetKey := cache.NewKey(cache.NamespaceSubnets, "web", "subnet-1", testAccount, testRegion)
	c.Check(subnets[subnetKey]["cidr"], gc.Equals, "10.0.0.0/24")

	// Floating IPs are keyed by address since they carry no name.
	fips := result.Namespace(cache.NamespaceFloatingIPs).Keep
	fipKey := cache.NewKey(cache.NamespaceFloatingIPs, "203.0.113.7", "fip-1", testAccount, testRegion)
	c.Check(fips[fipKey]["portId"], gc.Equals, "port-1")
}

func (s *infrastructureSuite) TestLoadDataEvictsVanished(c *gc.C) {
	ctx := context.Background()
	stale := cache.NewKey(cache.NamespacePorts, "old-port", "port-9", testAccount, testRegion)
	err := s.store.Put(ctx, &cache.Result{
		Namespaces: map[string]cache.NamespaceResult{
			cache.NamespacePorts: {Keep: map[cache.Key]cache.Attributes{stale: {"id": "port-9"}}},
		},
	})
	c.Assert(err, jc.ErrorIsNil)

	result, err := s.agent.LoadData(ctx)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(result.Namespace(cache.NamespacePorts).Evict, jc.SameContents, []cache.Key{stale})
}

func (s *infrastructureSuite) TestListErrorAbortsPass(c *gc.C) {
	s.net.listPortsErr = errors.New("neutron down")
	_, err := s.agent.LoadData(context.Background())
	c.Assert(err, gc.ErrorMatches, ".*neutron down.*")
}

type supportSuite struct {
	jujutesting.IsolationSuite

	clock *testclock.Clock
	store *memory.Store
	lb    *fakeLBClient
	agent *agent.LoadBalancerSupportAgent
}

var _ = gc.Suite(&supportSuite{})

func (s *supportSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	s.store = memory.NewStore()
	s.lb = &fakeLBClient{
		vips: []provider.Vip{{
			ID: "vip-1", Name: "vip-web", Address: "10.0.0.9", Protocol: "HTTP", ProtocolPort: 443,
		}},
		monitors: []provider.HealthMonitor{{
			ID: "mon-1", Type: "PING", Delay: 10, Timeout: 5, MaxRetries: 3,
		}},
	}
	a, err := agent.NewLoadBalancerSupportAgent(agent.Config{
		Account:       testAccount,
		Region:        testRegion,
		Store:         s.store,
		Clock:         s.clock,
		LoadBalancers: s.lb,
	})
	c.Assert(err, jc.ErrorIsNil)
	s.agent = a
}

func (s *supportSuite) TestLoadDataCachesVipsAndMonitors(c *gc.C) {
	result, err := s.agent.LoadData(context.Background())
	c.Assert(err, jc.ErrorIsNil)

	vipKey := cache.NewKey(cache.NamespaceVips, "vip-web", "vip-1", testAccount, testRegion)
	vip := result.Namespace(cache.NamespaceVips).Keep[vipKey]
	c.Assert(vip, gc.NotNil)
	c.Check(vip["address"], gc.Equals, "10.0.0.9")
	c.Check(vip["protocolPort"], gc.Equals, 443)

	monKey := cache.NewKey(cache.NamespaceHealthMonitors, "mon-1", "mon-1", testAccount, testRegion)
	mon := result.Namespace(cache.NamespaceHealthMonitors).Keep[monKey]
	c.Assert(mon, gc.NotNil)
	c.Check(mon["type"], gc.Equals, "PING")
}

func (s *supportSuite) TestNamelessVipKeyedByID(c *gc.C) {
	s.lb.vips = []provider.Vip{{ID: "vip-2", Address: "10.0.0.10"}}
	result, err := s.agent.LoadData(context.Background())
	c.Assert(err, jc.ErrorIsNil)

	key := cache.NewKey(cache.NamespaceVips, "vip-2", "vip-2", testAccount, testRegion)
	c.Check(result.Namespace(cache.NamespaceVips).Keep[key], gc.NotNil)
}
