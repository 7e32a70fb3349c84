// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/skycache/skycache/internal/compute"
	"github.com/skycache/skycache/internal/provider"
)

// ErrNotConfigured aborts a status update against an environment that
// has no discovery registry configured.
const ErrNotConfigured = errors.ConstError("discovery not configured for this account")

// RetryMax is the total number of attempts made against the registry
// for one instance before a transient failure becomes fatal.
const RetryMax = 10

const (
	// serverErrorBackoff stretches the retry delay when the registry
	// itself is failing, as opposed to merely not knowing the
	// instance yet.
	serverErrorBackoff = 10

	defaultRetryDelay    = 3 * time.Second
	defaultThrottleDelay = 150 * time.Millisecond
)

// RegistryClient is the slice of the registry the updater needs.
type RegistryClient interface {
	InstanceApp(ctx context.Context, instanceID string) (string, error)
	UpdateStatus(ctx context.Context, app, instanceID, value string) error
}

// UpdaterConfig holds an Updater's collaborators. A nil Registry is
// valid and means the account has no discovery integration; any update
// call will then fail with ErrNotConfigured.
type UpdaterConfig struct {
	Registry RegistryClient
	Groups   compute.GroupClient
	Compute  provider.ComputeClient
	Clock    clock.Clock

	// RetryDelay is the base delay between registry retries;
	// ThrottleDelay is the pause between consecutive instances.
	// Zero values take defaults.
	RetryDelay    time.Duration
	ThrottleDelay time.Duration
}

func (c UpdaterConfig) validate() error {
	if c.Groups == nil {
		return errors.NotValidf("nil Groups client")
	}
	if c.Compute == nil {
		return errors.NotValidf("nil Compute client")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Request identifies the instances whose registration status should
// change, and the server group they belong to.
type Request struct {
	Region      string
	ServerGroup string
	InstanceIDs []string
}

// Updater pushes registration status changes to the registry, one
// instance at a time.
type Updater struct {
	registry      RegistryClient
	groups        compute.GroupClient
	compute       provider.ComputeClient
	clock         clock.Clock
	retryDelay    time.Duration
	throttleDelay time.Duration
}

// NewUpdater returns an Updater for the given collaborators.
func NewUpdater(config UpdaterConfig) (*Updater, error) {
	if err := config.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaultRetryDelay
	}
	if config.ThrottleDelay <= 0 {
		config.ThrottleDelay = defaultThrottleDelay
	}
	return &Updater{
		registry:      config.Registry,
		groups:        config.Groups,
		compute:       config.Compute,
		clock:         config.Clock,
		retryDelay:    config.RetryDelay,
		throttleDelay: config.ThrottleDelay,
	}, nil
}

// UpdateInstances walks the request's instance ids in order and pushes
// the given status for each. Instances are processed strictly
// sequentially with a throttle pause between them.
//
// When disabling, an instance whose server group is gone, deleting, or
// no longer lists it, or that the compute provider no longer reports,
// is skipped without touching the registry. An instance the registry
// has no application for marks the task failed and processing moves
// on. Any other failure that survives the retry policy aborts the
// remaining instances.
func (u *Updater) UpdateInstances(ctx context.Context, task Task, phase string, status Status, request Request) error {
	if err := status.Validate(); err != nil {
		return errors.Trace(err)
	}
	if u.registry == nil {
		return errors.Trace(ErrNotConfigured)
	}

	for i, instanceID := range request.InstanceIDs {
		if task.Failed() {
			logger.Debugf("task already failed, skipping remaining %d instances",
				len(request.InstanceIDs)-i)
			return nil
		}
		if i > 0 {
			select {
			case <-u.clock.After(u.throttleDelay):
			case <-ctx.Done():
				return errors.Trace(ctx.Err())
			}
		}

		if status == Disable {
			managed, err := u.instanceManaged(ctx, request, instanceID)
			if err != nil {
				return errors.Trace(err)
			}
			if !managed {
				logger.Infof("instance %q no longer managed by group %q, skipping",
					instanceID, request.ServerGroup)
				task.UpdateStatus(phase, fmt.Sprintf(
					"Instance %s is no longer part of server group %s, skipping",
					instanceID, request.ServerGroup))
				continue
			}
		}

		task.UpdateStatus(phase, fmt.Sprintf(
			"Attempting to mark %s as %q in discovery", instanceID, status.Value()))
		err := u.updateInstance(ctx, task, phase, status, instanceID)
		if errors.Is(err, ErrNotRegistered) {
			task.Fail(phase, fmt.Sprintf(
				"Instance %s is not registered with discovery, unable to mark as %q",
				instanceID, status.Value()))
			continue
		} else if err != nil {
			task.Fail(phase, fmt.Sprintf(
				"Failed to mark %s as %q in discovery: %v", instanceID, status.Value(), err))
			return errors.Trace(err)
		}
		task.UpdateStatus(phase, fmt.Sprintf(
			"Marked %s as %q in discovery", instanceID, status.Value()))
	}
	return nil
}

// instanceManaged reports whether the instance is still a live member
// of the request's server group. Lookups answering "gone" are a skip
// signal, not an error.
func (u *Updater) instanceManaged(ctx context.Context, request Request, instanceID string) (bool, error) {
	group, err := u.groups.ServerGroup(ctx, request.Region, request.ServerGroup)
	if errors.Is(err, errors.NotFound) {
		return false, nil
	} else if err != nil {
		return false, errors.Annotatef(err, "resolving server group %q", request.ServerGroup)
	}
	if group.Deleting() || !group.Contains(instanceID) {
		return false, nil
	}
	if _, err := u.compute.GetServer(ctx, request.Region, instanceID); errors.Is(err, errors.NotFound) {
		return false, nil
	} else if err != nil {
		return false, errors.Annotatef(err, "describing instance %q", instanceID)
	}
	return true, nil
}

// updateInstance resolves the instance's application and pushes the
// status, retrying transient registry failures up to RetryMax total
// attempts. A 404 is retried at the base delay since the registry may
// not have indexed a new instance yet; a 5xx is retried at a stretched
// delay; anything else is fatal on first sight.
func (u *Updater) updateInstance(ctx context.Context, task Task, phase string, status Status, instanceID string) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			app, err := u.registry.InstanceApp(ctx, instanceID)
			if err != nil {
				return errors.Trace(err)
			}
			return errors.Trace(u.registry.UpdateStatus(ctx, app, instanceID, status.Value()))
		},
		IsFatalError: func(err error) bool {
			return !retryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			lastErr = err
			logger.Debugf("discovery attempt %d/%d for %q: %v", attempt, RetryMax, instanceID, err)
			task.UpdateStatus(phase, fmt.Sprintf(
				"Discovery attempt %d/%d for %s failed: %v", attempt, RetryMax, instanceID, err))
		},
		BackoffFunc: func(time.Duration, int) time.Duration {
			if IsRegistryServerError(lastErr) {
				return u.retryDelay * serverErrorBackoff
			}
			return u.retryDelay
		},
		Attempts: RetryMax,
		Delay:    u.retryDelay,
		Clock:    u.clock,
		Stop:     ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) {
		return errors.Annotatef(lastErr, "giving up after %d attempts", RetryMax)
	}
	return errors.Trace(err)
}

// retryable decides which failures the retry loop absorbs: transport
// errors, registry 5xx and registry 404. Everything else, including an
// unregistered instance and context cancellation, is fatal.
func retryable(err error) bool {
	if errors.Is(err, ErrNotRegistered) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 404 || statusErr.Code >= 500
	}
	// Anything without a status code never reached the registry.
	return true
}
