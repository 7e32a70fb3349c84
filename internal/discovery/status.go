// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package discovery maintains instance registration status in a
// Eureka-style discovery registry. The updater walks a batch of
// instance ids sequentially, resolving each instance's owning
// application and pushing the desired status, with bounded retries
// against registry hiccups.
package discovery

import (
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("skycache.discovery")

// Status is the direction of a registration change.
type Status string

const (
	// Enable puts instances back into service.
	Enable Status = "Enable"
	// Disable takes instances out of service without deregistering
	// them.
	Disable Status = "Disable"
)

// Value is the wire value the registry stores for this status.
func (s Status) Value() string {
	switch s {
	case Enable:
		return "UP"
	case Disable:
		return "OUT_OF_SERVICE"
	}
	return ""
}

// Validate returns an error for a status the registry cannot store.
func (s Status) Validate() error {
	if s.Value() == "" {
		return errors.NotValidf("discovery status %q", string(s))
	}
	return nil
}
