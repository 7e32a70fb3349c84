// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package discovery

import (
	"fmt"
	"sync"
)

// Task observes the progress of a batch status update. Status lines
// are appended per instance and per attempt so a caller polling the
// task sees progress; a failed task stays failed and causes the
// updater to skip instances it has not yet reached.
type Task interface {
	// UpdateStatus appends a status line for the given phase.
	UpdateStatus(phase, status string)
	// Fail marks the task failed with a final status line.
	Fail(phase, status string)
	// Failed reports whether the task has been marked failed.
	Failed() bool
}

// BasicTask is an in-memory Task.
type BasicTask struct {
	mu      sync.Mutex
	failed  bool
	history []string
}

// NewBasicTask returns an empty, unfailed task.
func NewBasicTask() *BasicTask {
	return &BasicTask{}
}

// UpdateStatus is part of the Task interface.
func (t *BasicTask) UpdateStatus(phase, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, fmt.Sprintf("%s: %s", phase, status))
}

// Fail is part of the Task interface.
func (t *BasicTask) Fail(phase, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
	t.history = append(t.history, fmt.Sprintf("%s: %s", phase, status))
}

// Failed is part of the Task interface.
func (t *BasicTask) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// History returns a copy of the status lines appended so far.
func (t *BasicTask) History() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.history...)
}
