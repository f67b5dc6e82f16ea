// Fieldsight - Realtime Tactical Map Coordination
// Copyright 2026 Fieldsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldsight/fieldsight

package services

import (
	"context"
)

// ContextRunner matches the realtime coordinator's Run method without
// importing the realtime package, keeping the dependency one-way.
type ContextRunner interface {
	Run(ctx context.Context) error
}

// CoordinatorService runs the realtime coordinator loop under
// supervision. Run already follows the suture contract: it blocks,
// processes commands, and returns ctx.Err() on cancellation.
type CoordinatorService struct {
	runner ContextRunner
	name   string
}

// NewCoordinatorService wraps the coordinator as a supervised service.
func NewCoordinatorService(runner ContextRunner) *CoordinatorService {
	return &CoordinatorService{
		runner: runner,
		name:   "realtime-coordinator",
	}
}

// Serve implements suture.Service.
func (c *CoordinatorService) Serve(ctx context.Context) error {
	return c.runner.Run(ctx)
}

// String identifies the service in supervisor logs.
func (c *CoordinatorService) String() string {
	return c.name
}
