// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package discovery_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/skycache/skycache/internal/discovery"
)

type clientSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&clientSuite{})

func (s *clientSuite) newClient(c *gc.C, handler http.Handler) *discovery.Client {
	server := httptest.NewServer(handler)
	s.AddCleanup(func(*gc.C) { server.Close() })
	client, err := discovery.NewClient(server.URL, nil)
	c.Assert(err, jc.ErrorIsNil)
	return client
}

func (s *clientSuite) TestNewClientRejectsBadURL(c *gc.C) {
	_, err := discovery.NewClient("eureka.internal", nil)
	c.Assert(err, gc.NotNil)
}

func (s *clientSuite) TestInstanceApp(c *gc.C) {
	var gotPath string
	client := s.newClient(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"instance": {"app": "ORDERS", "status": "UP"}}`))
	}))

	app, err := client.InstanceApp(context.Background(), "i-abc123")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(app, gc.Equals, "ORDERS")
	c.Check(gotPath, gc.Equals, "/v2/instances/i-abc123")
}

func (s *clientSuite) TestInstanceAppNoApp(c *gc.C) {
	client := s.newClient(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"instance": {"status": "UP"}}`))
	}))

	_, err := client.InstanceApp(context.Background(), "i-abc123")
	c.Assert(err, jc.ErrorIs, discovery.ErrNotRegistered)
}

func (s *clientSuite) TestInstanceAppNotFound(c *gc.C) {
	client := s.newClient(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.InstanceApp(context.Background(), "i-abc123")
	c.Assert(discovery.IsRegistryNotFound(err), jc.IsTrue)
	c.Assert(discovery.IsRegistryServerError(err), jc.IsFalse)
}

func (s *clientSuite) TestInstanceAppServerError(c *gc.C) {
	client := s.newClient(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.InstanceApp(context.Background(), "i-abc123")
	c.Assert(discovery.IsRegistryServerError(err), jc.IsTrue)
}

func (s *clientSuite) TestUpdateStatus(c *gc.C) {
	var gotMethod, gotPath, gotValue string
	client := s.newClient(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotValue = r.URL.Query().Get("value")
	}))

	err := client.UpdateStatus(context.Background(), "ORDERS", "i-abc123", "OUT_OF_SERVICE")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(gotMethod, gc.Equals, "PUT")
	c.Check(gotPath, gc.Equals, "/v2/apps/ORDERS/i-abc123/status")
	c.Check(gotValue, gc.Equals, "OUT_OF_SERVICE")
}

func (s *clientSuite) TestUpdateStatusServerError(c *gc.C) {
	client := s.newClient(c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := client.UpdateStatus(context.Background(), "ORDERS", "i-abc123", "UP")
	c.Assert(discovery.IsRegistryServerError(err), jc.IsTrue)
	c.Assert(err, gc.ErrorMatches, `discovery registry returned 500 for PUT .*`)
}

func (s *clientSuite) TestTransportError(c *gc.C) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	client, err := discovery.NewClient(url, nil)
	c.Assert(err, jc.ErrorIsNil)

	_, err = client.InstanceApp(context.Background(), "i-abc123")
	c.Assert(err, gc.ErrorMatches, `fetching instance "i-abc123" from discovery.*`)
	c.Check(discovery.IsRegistryNotFound(err), jc.IsFalse)
	c.Check(discovery.IsRegistryServerError(err), jc.IsFalse)
}

func (s *clientSuite) TestStatusValues(c *gc.C) {
	c.Check(discovery.Enable.Value(), gc.Equals, "UP")
	c.Check(discovery.Disable.Value(), gc.Equals, "OUT_OF_SERVICE")
	c.Check(discovery.Enable.Validate(), jc.ErrorIsNil)
	c.Check(discovery.Status("Drain").Validate(), gc.NotNil)
}
