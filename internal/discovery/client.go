// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/juju/errors"
	jujuhttp "github.com/juju/http/v2"
	"gopkg.in/httprequest.v1"
)

// ErrNotRegistered reports an instance the registry knows nothing
// useful about: the instance descriptor carries no owning application.
const ErrNotRegistered = errors.ConstError("instance not registered with discovery")

// Transport makes the actual HTTP request.
type Transport interface {
	Do(*http.Request) (*http.Response, error)
}

// DefaultTransport returns the production transport.
func DefaultTransport() Transport {
	return jujuhttp.NewClient()
}

// StatusError is a non-2xx reply from the registry. The code decides
// whether the caller retries or gives up.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

// Error is part of the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("discovery registry returned %d for %s %s", e.Code, e.Method, e.URL)
}

// IsRegistryNotFound reports whether err is a 404 from the registry.
func IsRegistryNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// IsRegistryServerError reports whether err is a 5xx from the registry.
func IsRegistryServerError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code >= http.StatusInternalServerError
}

// Client is a minimal client for the registry's instance and status
// endpoints.
type Client struct {
	baseURL   string
	transport Transport
}

// NewClient returns a client for the registry at baseURL.
func NewClient(baseURL string, transport Transport) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing discovery URL %q", baseURL)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.NotValidf("discovery URL %q", baseURL)
	}
	if transport == nil {
		transport = DefaultTransport()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
	}, nil
}

type instanceResponse struct {
	Instance struct {
		App string `json:"app"`
	} `json:"instance"`
}

// InstanceApp resolves the application name that owns the given
// instance. An instance the registry has no application for yields
// ErrNotRegistered.
func (c *Client) InstanceApp(ctx context.Context, instanceID string) (string, error) {
	target := fmt.Sprintf("%s/v2/instances/%s", c.baseURL, url.PathEscape(instanceID))
	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return "", errors.Trace(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.transport.Do(req)
	if err != nil {
		return "", errors.Annotatef(err, "fetching instance %q from discovery", instanceID)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Method: "GET", URL: target, Code: resp.StatusCode}
	}
	var result instanceResponse
	if err := httprequest.UnmarshalJSONResponse(resp, &result); err != nil {
		return "", errors.Annotatef(err, "decoding instance %q", instanceID)
	}
	if result.Instance.App == "" {
		return "", errors.Annotatef(ErrNotRegistered, "instance %q", instanceID)
	}
	return result.Instance.App, nil
}

// UpdateStatus pushes the status value for the application/instance
// pair. The registry replies with a bare status code and no body.
func (c *Client) UpdateStatus(ctx context.Context, app, instanceID, value string) error {
	target := fmt.Sprintf("%s/v2/apps/%s/%s/status?value=%s",
		c.baseURL, url.PathEscape(app), url.PathEscape(instanceID), url.QueryEscape(value))
	req, err := http.NewRequestWithContext(ctx, "PUT", target, nil)
	if err != nil {
		return errors.Trace(err)
	}

	resp, err := c.transport.Do(req)
	if err != nil {
		return errors.Annotatef(err, "updating status of instance %q", instanceID)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode > http.StatusNoContent {
		return &StatusError{Method: "PUT", URL: target, Code: resp.StatusCode}
	}
	return nil
}
