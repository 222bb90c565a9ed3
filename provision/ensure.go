// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package provision implements the idempotent get-or-create engine used
// for all shared tenant resources. Correctness under concurrent
// deployments does not depend on locks: resource names are deterministic
// per tenant and kind, so racing creators converge on one name and the
// provider's uniqueness constraint decides the race. A create that loses
// the race reports already-exists, which is folded into success here.
package provision

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/canonical/tenant-deployer/core/resource"
)

var logger = loggo.GetLogger("deployer.provision")

// ResourceOps supplies the read and create operations for one resource
// kind. Implementations map provider errors to the juju/errors
// categories at their boundary: in particular a uniqueness-constraint
// violation from Create must satisfy errors.Is(err, errors.AlreadyExists).
type ResourceOps interface {
	// Exists reports whether the described resource is present.
	Exists(ctx context.Context, desc resource.Descriptor) (bool, error)

	// Create provisions the described resource. Creating a resource
	// that already exists must not be reported as a distinct failure
	// from any other creator having won the race.
	Create(ctx context.Context, desc resource.Descriptor) error
}

// EnsureExists makes sure the described resource is present. If the
// existence check reports presence no create call is made. Otherwise
// Create is invoked exactly once; an already-exists outcome means a
// concurrent caller won and is success. Any other error is surfaced to
// the caller unchanged; there is deliberately no retry here.
func EnsureExists(ctx context.Context, desc resource.Descriptor, ops ResourceOps) error {
	if err := desc.Validate(); err != nil {
		return errors.Trace(err)
	}
	present, err := ops.Exists(ctx, desc)
	if err != nil {
		return errors.Annotatef(err, "checking for %s", desc)
	}
	if present {
		logger.Debugf("%s already present", desc)
		return nil
	}
	if err := ops.Create(ctx, desc); err != nil {
		if errors.Is(err, errors.AlreadyExists) {
			logger.Debugf("%s created concurrently elsewhere", desc)
			return nil
		}
		return errors.Annotatef(err, "creating %s", desc)
	}
	logger.Infof("created %s", desc)
	return nil
}

// Funcs adapts a pair of closures to ResourceOps.
type Funcs struct {
	ExistsFunc func(ctx context.Context, desc resource.Descriptor) (bool, error)
	CreateFunc func(ctx context.Context, desc resource.Descriptor) error
}

// Exists is part of ResourceOps.
func (f Funcs) Exists(ctx context.Context, desc resource.Descriptor) (bool, error) {
	return f.ExistsFunc(ctx, desc)
}

// Create is part of ResourceOps.
func (f Funcs) Create(ctx context.Context, desc resource.Descriptor) error {
	return f.CreateFunc(ctx, desc)
}
