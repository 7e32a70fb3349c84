// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package discovery_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/skycache/skycache/internal/compute"
	"github.com/skycache/skycache/internal/discovery"
	"github.com/skycache/skycache/internal/provider"
)

// fakeRegistry scripts per-call outcomes. Errors are consumed from the
// front of the queue; an empty queue means success.
type fakeRegistry struct {
	app        string
	appErrs    []error
	updateErrs []error

	appCalls    int
	updateCalls int
	updated     []string
}

func (f *fakeRegistry) InstanceApp(_ context.Context, instanceID string) (string, error) {
	f.appCalls++
	if len(f.appErrs) > 0 {
		err := f.appErrs[0]
		f.appErrs = f.appErrs[1:]
		if err != nil {
			return "", err
		}
	}
	if f.app == "" {
		return "", errors.Annotatef(discovery.ErrNotRegistered, "instance %q", instanceID)
	}
	return f.app, nil
}

func (f *fakeRegistry) UpdateStatus(_ context.Context, app, instanceID, value string) error {
	f.updateCalls++
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return err
		}
	}
	f.updated = append(f.updated, app+"/"+instanceID+"="+value)
	return nil
}

type fakeGroups struct {
	group *compute.ServerGroup
	err   error
	calls int
}

func (f *fakeGroups) ServerGroup(_ context.Context, region, name string) (*compute.ServerGroup, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.group, nil
}

type fakeCompute struct {
	missing []string
	err     error
}

func (f *fakeCompute) GetServer(_ context.Context, region, id string) (*provider.Server, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, m := range f.missing {
		if m == id {
			return nil, errors.NotFoundf("server %q", id)
		}
	}
	return &provider.Server{ID: id}, nil
}

// recordingClock passes time through to the wall clock but fires every
// After immediately, recording the requested durations.
type recordingClock struct {
	clock.Clock

	mu     sync.Mutex
	delays []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{Clock: clock.WallClock}
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (c *recordingClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

type updaterSuite struct {
	jujutesting.IsolationSuite

	registry *fakeRegistry
	groups   *fakeGroups
	compute  *fakeCompute
	clock    *recordingClock
	task     *discovery.BasicTask
}

var _ = gc.Suite(&updaterSuite{})

const (
	baseDelay = 10 * time.Millisecond
	throttle  = 5 * time.Millisecond
)

func (s *updaterSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.registry = &fakeRegistry{app: "ORDERS"}
	s.groups = &fakeGroups{group: &compute.ServerGroup{
		Name:        "orders-v003",
		Status:      "ACTIVE",
		InstanceIDs: []string{"i-1", "i-2"},
	}}
	s.compute = &fakeCompute{}
	s.clock = newRecordingClock()
	s.task = discovery.NewBasicTask()
}

func (s *updaterSuite) updater(c *gc.C, registry discovery.RegistryClient) *discovery.Updater {
	u, err := discovery.NewUpdater(discovery.UpdaterConfig{
		Registry:      registry,
		Groups:        s.groups,
		Compute:       s.compute,
		Clock:         s.clock,
		RetryDelay:    baseDelay,
		ThrottleDelay: throttle,
	})
	c.Assert(err, jc.ErrorIsNil)
	return u
}

func (s *updaterSuite) request(ids ...string) discovery.Request {
	return discovery.Request{
		Region:      "region-one",
		ServerGroup: "orders-v003",
		InstanceIDs: ids,
	}
}

func (s *updaterSuite) update(c *gc.C, status discovery.Status, ids ...string) error {
	u := s.updater(c, s.registry)
	return u.UpdateInstances(context.Background(), s.task, "phase", status, s.request(ids...))
}

func transportErr() error {
	return errors.New("connection refused")
}

func statusErr(code int) error {
	return &discovery.StatusError{Method: "GET", URL: "http://eureka/v2/instances/i-1", Code: code}
}

func (s *updaterSuite) TestEnableMarksUp(c *gc.C) {
	err := s.update(c, discovery.Enable, "i-1", "i-2")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.registry.updated, jc.DeepEquals, []string{
		"ORDERS/i-1=UP", "ORDERS/i-2=UP",
	})
	c.Check(s.task.Failed(), jc.IsFalse)
	// No existence checks when enabling.
	c.Check(s.groups.calls, gc.Equals, 0)
}

func (s *updaterSuite) TestDisableMarksOutOfService(c *gc.C) {
	err := s.update(c, discovery.Disable, "i-1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.registry.updated, jc.DeepEquals, []string{"ORDERS/i-1=OUT_OF_SERVICE"})
}

func (s *updaterSuite) TestInvalidStatus(c *gc.C) {
	u := s.updater(c, s.registry)
	err := u.UpdateInstances(context.Background(), s.task, "phase", discovery.Status("Pause"), s.request("i-1"))
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *updaterSuite) TestNotConfigured(c *gc.C) {
	u := s.updater(c, nil)
	err := u.UpdateInstances(context.Background(), s.task, "phase", discovery.Enable, s.request("i-1"))
	c.Assert(err, jc.ErrorIs, discovery.ErrNotConfigured)
	c.Check(s.registry.appCalls, gc.Equals, 0)
}

func (s *updaterSuite) TestRetriesTransportFailures(c *gc.C) {
	// Nine consecutive failures then success stays within the retry
	// budget of ten attempts.
	for i := 0; i < discovery.RetryMax-1; i++ {
		s.registry.appErrs = append(s.registry.appErrs, transportErr())
	}
	err := s.update(c, discovery.Enable, "i-1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.registry.appCalls, gc.Equals, discovery.RetryMax)
	c.Check(s.registry.updated, jc.DeepEquals, []string{"ORDERS/i-1=UP"})
	c.Check(s.task.Failed(), jc.IsFalse)
}

func (s *updaterSuite) TestRetryExhaustionAbortsBatch(c *gc.C) {
	for i := 0; i < discovery.RetryMax; i++ {
		s.registry.appErrs = append(s.registry.appErrs, transportErr())
	}
	err := s.update(c, discovery.Enable, "i-1", "i-2")
	c.Assert(err, gc.ErrorMatches, ".*giving up after 10 attempts.*")
	// i-2 was never attempted.
	c.Check(s.registry.appCalls, gc.Equals, discovery.RetryMax)
	c.Check(s.registry.updateCalls, gc.Equals, 0)
	c.Check(s.task.Failed(), jc.IsTrue)
}

func (s *updaterSuite) TestNotFoundRetriedAtBaseDelay(c *gc.C) {
	s.registry.appErrs = []error{statusErr(http.StatusNotFound), statusErr(http.StatusNotFound)}
	err := s.update(c, discovery.Enable, "i-1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.registry.appCalls, gc.Equals, 3)
	c.Check(s.clock.Delays(), jc.DeepEquals, []time.Duration{baseDelay, baseDelay})
}

func (s *updaterSuite) TestServerErrorStretchesDelay(c *gc.C) {
	s.registry.appErrs = []error{
		statusErr(http.StatusInternalServerError),
		statusErr(http.StatusBadGateway),
	}
	err := s.update(c, discovery.Enable, "i-1")
	c.Assert(err, jc.ErrorIsNil)
	delays := s.clock.Delays()
	c.Assert(delays, gc.HasLen, 2)
	c.Check(delays[1], gc.Equals, 10*baseDelay)
}

func (s *updaterSuite) TestOtherClientErrorFatal(c *gc.C) {
	s.registry.appErrs = []error{statusErr(http.StatusForbidden)}
	err := s.update(c, discovery.Enable, "i-1", "i-2")
	c.Assert(err, gc.ErrorMatches, ".*returned 403.*")
	c.Check(s.registry.appCalls, gc.Equals, 1)
	c.Check(s.task.Failed(), jc.IsTrue)
}

func (s *updaterSuite) TestUnregisteredFailsTaskWithoutError(c *gc.C) {
	s.registry.app = ""
	err := s.update(c, discovery.Enable, "i-1", "i-2")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.task.Failed(), jc.IsTrue)
	// The failed flag stops the batch before i-2 is contacted.
	c.Check(s.registry.appCalls, gc.Equals, 1)
}

func (s *updaterSuite) TestFailedTaskSkipsAllInstances(c *gc.C) {
	s.task.Fail("earlier", "something else went wrong")
	err := s.update(c, discovery.Enable, "i-1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.registry.appCalls, gc.Equals, 0)
}

func (s *updaterSuite) TestDisableSkipsMissingGroup(c *gc.C) {
	s.groups.err = errors.NotFoundf("server group %q", "orders-v003")
	err := s.update(c, discovery.Disable, "i-1", "i-2")
	c.Assert(err, jc.ErrorIsNil)
	// No registry traffic for skipped instances.
	c.Check(s.registry.appCalls, gc.Equals, 0)
	c.Check(s.task.Failed(), jc.IsFalse)
	history := strings.Join(s.task.History(), "\n")
	c.Check(history, gc.Matches, "(?s).*no longer part of server group.*")
}

func (s *updaterSuite) TestDisableSkipsDeletingGroup(c *gc.C) {
	s.groups.group.Status = "DELETING"
	err := s.update(c, discovery.Disable, "i-1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.registry.appCalls, gc.Equals, 0)
}

func (s *updaterSuite) TestDisableSkipsDepartedInstanceButContinues(c *gc.C) {
	s.groups.group.InstanceIDs = []string{"i-2"}
	err := s.update(c, discovery.Disable, "i-1", "i-2")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.registry.updated, jc.DeepEquals, []string{"ORDERS/i-2=OUT_OF_SERVICE"})
}

func (s *updaterSuite) TestDisableSkipsVanishedServer(c *gc.C) {
	s.compute.missing = []string{"i-1"}
	err := s.update(c, discovery.Disable, "i-1", "i-2")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.registry.updated, jc.DeepEquals, []string{"ORDERS/i-2=OUT_OF_SERVICE"})
}

func (s *updaterSuite) TestDisableGroupLookupErrorAborts(c *gc.C) {
	s.groups.err = errors.New("nova timeout")
	err := s.update(c, discovery.Disable, "i-1")
	c.Assert(err, gc.ErrorMatches, ".*nova timeout.*")
}

func (s *updaterSuite) TestThrottleBetweenInstances(c *gc.C) {
	err := s.update(c, discovery.Enable, "i-1", "i-2", "i-3")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.clock.Delays(), jc.DeepEquals, []time.Duration{throttle, throttle})
}

func (s *updaterSuite) TestTaskHistoryShowsProgress(c *gc.C) {
	s.registry.appErrs = []error{transportErr()}
	err := s.update(c, discovery.Enable, "i-1")
	c.Assert(err, jc.ErrorIsNil)
	history := s.task.History()
	c.Assert(len(history), gc.Equals, 3)
	c.Check(history[0], gc.Matches, `phase: Attempting to mark i-1 as "UP".*`)
	c.Check(history[1], gc.Matches, `phase: Discovery attempt 1/10 for i-1 failed:.*`)
	c.Check(history[2], gc.Matches, `phase: Marked i-1 as "UP".*`)
}
