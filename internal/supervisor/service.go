// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package supervisor

import (
	"context"
)

// Func adapts a blocking run function to suture.Service. Used for
// components that expose Run(ctx) rather than implementing the interface
// themselves.
type Func struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFunc wraps fn as a named service.
func NewFunc(name string, fn func(ctx context.Context) error) *Func {
	return &Func{name: name, fn: fn}
}

// Serve implements suture.Service.
func (f *Func) Serve(ctx context.Context) error {
	return f.fn(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (f *Func) String() string {
	return f.name
}
