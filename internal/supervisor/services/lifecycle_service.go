// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package services

import (
	"context"
	"fmt"
)

// StartStopper is the lifecycle shared by the background components.
//
// Satisfied by:
//   - *jobqueue.Worker
//   - *feedwatch.Watcher
//   - *store.GCRunner
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// LifecycleService adapts a Start/Stop component to suture's Serve:
// Start, block until ctx is canceled, then Stop. A failed Start is returned
// so suture restarts the component with backoff.
//
//	worker := jobqueue.NewWorker(queue, cfg, logger)
//	tree.AddWorkerService(services.NewLifecycleService("job-worker", worker))
type LifecycleService struct {
	component StartStopper
	name      string
}

// NewLifecycleService wraps component under name.
func NewLifecycleService(name string, component StartStopper) *LifecycleService {
	return &LifecycleService{component: component, name: name}
}

// Serve implements suture.Service.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	// Stop waits for the component goroutine to exit.
	if err := s.component.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *LifecycleService) String() string {
	return s.name
}

// Stopper is a component with nothing to start, only to drain.
type Stopper interface {
	Stop() error
}

// DrainService holds a Stopper until shutdown and then stops it. The
// synchronous executor uses it to cancel pending in-process retries.
type DrainService struct {
	component Stopper
	name      string
}

// NewDrainService wraps component under name.
func NewDrainService(name string, component Stopper) *DrainService {
	return &DrainService{component: component, name: name}
}

// Serve implements suture.Service.
func (s *DrainService) Serve(ctx context.Context) error {
	<-ctx.Done()
	if err := s.component.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (s *DrainService) String() string {
	return s.name
}
