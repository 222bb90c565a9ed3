// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package google wraps the GCE compute API behind a Connection with
// blocking semantics: create and delete calls wait for their operation
// to finish, and API errors are converted to the standard categories.
package google

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/option"
)

var logger = loggo.GetLogger("deployer.provider.gce.google")

const (
	operationPollDelay  = 2 * time.Second
	operationPollWindow = 5 * time.Minute
)

// Auth holds what is needed to talk to one GCE project.
type Auth struct {
	ProjectID string
	// CredentialsFile is a service account key file. Empty means
	// application default credentials.
	CredentialsFile string
}

// Connection is an authenticated link to one GCE project.
type Connection struct {
	raw       rawService
	projectID string
	clock     clock.Clock
}

// Connect opens a connection for the given auth details.
func Connect(ctx context.Context, auth Auth) (*Connection, error) {
	if auth.ProjectID == "" {
		return nil, errors.NotValidf("empty project id")
	}
	var opts []option.ClientOption
	if auth.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(auth.CredentialsFile))
	}
	service, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "creating compute service")
	}
	return &Connection{
		raw:       &rawConn{service: service},
		projectID: auth.ProjectID,
		clock:     clock.WallClock,
	}, nil
}

var errOperationPending = errors.New("operation not yet done")

// waitOperation blocks until op finishes, using getOp to refresh it.
// Only the still-pending condition is retried; API errors surface
// immediately. An operation that finishes with errors is returned as a
// single error.
func (c *Connection) waitOperation(op *compute.Operation, getOp func() (*compute.Operation, error)) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if op.Status == "DONE" {
				return nil
			}
			refreshed, err := getOp()
			if err != nil {
				return convertRawError(err)
			}
			op = refreshed
			if op.Status != "DONE" {
				return errOperationPending
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return err != errOperationPending
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Tracef("operation %q pending (attempt %d)", op.Name, attempt)
		},
		Delay:       operationPollDelay,
		MaxDuration: operationPollWindow,
		Clock:       c.clock,
	})
	if err != nil {
		return errors.Annotatef(err, "waiting for operation %q", op.Name)
	}
	if op.Error != nil && len(op.Error.Errors) > 0 {
		first := op.Error.Errors[0]
		return errors.Errorf("operation %q failed: %s: %s", op.Name, first.Code, first.Message)
	}
	return nil
}

// Network returns the named network.
func (c *Connection) Network(ctx context.Context, name string) (*compute.Network, error) {
	network, err := c.raw.GetNetwork(ctx, c.projectID, name)
	if err != nil {
		return nil, convertRawError(err)
	}
	return network, nil
}

// CreateNetwork creates a network and waits for it to be usable.
func (c *Connection) CreateNetwork(ctx context.Context, spec *compute.Network) error {
	op, err := c.raw.InsertNetwork(ctx, c.projectID, spec)
	if err != nil {
		return convertRawError(err)
	}
	return errors.Trace(c.waitOperation(op, func() (*compute.Operation, error) {
		return c.raw.GetGlobalOperation(ctx, c.projectID, op.Name)
	}))
}

// Firewall returns the named firewall rule.
func (c *Connection) Firewall(ctx context.Context, name string) (*compute.Firewall, error) {
	firewall, err := c.raw.GetFirewall(ctx, c.projectID, name)
	if err != nil {
		return nil, convertRawError(err)
	}
	return firewall, nil
}

// CreateFirewall creates a firewall rule and waits for it.
func (c *Connection) CreateFirewall(ctx context.Context, spec *compute.Firewall) error {
	op, err := c.raw.InsertFirewall(ctx, c.projectID, spec)
	if err != nil {
		return convertRawError(err)
	}
	return errors.Trace(c.waitOperation(op, func() (*compute.Operation, error) {
		return c.raw.GetGlobalOperation(ctx, c.projectID, op.Name)
	}))
}

// Subnetworks lists the subnetworks in a region.
func (c *Connection) Subnetworks(ctx context.Context, region string) ([]*compute.Subnetwork, error) {
	subnets, err := c.raw.ListSubnetworks(ctx, c.projectID, region)
	if err != nil {
		return nil, convertRawError(err)
	}
	return subnets, nil
}

// CreateSubnetwork creates a subnetwork and waits for it.
func (c *Connection) CreateSubnetwork(ctx context.Context, region string, spec *compute.Subnetwork) error {
	op, err := c.raw.InsertSubnetwork(ctx, c.projectID, region, spec)
	if err != nil {
		return convertRawError(err)
	}
	return errors.Trace(c.waitOperation(op, func() (*compute.Operation, error) {
		return c.raw.GetRegionOperation(ctx, c.projectID, region, op.Name)
	}))
}

// DeleteSubnetwork removes a subnetwork and waits for the removal.
func (c *Connection) DeleteSubnetwork(ctx context.Context, region, name string) error {
	op, err := c.raw.DeleteSubnetwork(ctx, c.projectID, region, name)
	if err != nil {
		return convertRawError(err)
	}
	return errors.Trace(c.waitOperation(op, func() (*compute.Operation, error) {
		return c.raw.GetRegionOperation(ctx, c.projectID, region, op.Name)
	}))
}

// Instance returns the named instance in a zone.
func (c *Connection) Instance(ctx context.Context, zone, name string) (*compute.Instance, error) {
	inst, err := c.raw.GetInstance(ctx, c.projectID, zone, name)
	if err != nil {
		return nil, convertRawError(err)
	}
	return inst, nil
}

// CreateInstance creates an instance and waits for the insert
// operation. The caller still polls for RUNNING status separately.
func (c *Connection) CreateInstance(ctx context.Context, zone string, spec *compute.Instance) error {
	op, err := c.raw.InsertInstance(ctx, c.projectID, zone, spec)
	if err != nil {
		return convertRawError(err)
	}
	return errors.Trace(c.waitOperation(op, func() (*compute.Operation, error) {
		return c.raw.GetZoneOperation(ctx, c.projectID, zone, op.Name)
	}))
}

// DeleteInstance removes an instance and waits for the removal.
func (c *Connection) DeleteInstance(ctx context.Context, zone, name string) error {
	op, err := c.raw.DeleteInstance(ctx, c.projectID, zone, name)
	if err != nil {
		return convertRawError(err)
	}
	return errors.Trace(c.waitOperation(op, func() (*compute.Operation, error) {
		return c.raw.GetZoneOperation(ctx, c.projectID, zone, op.Name)
	}))
}

// AvailabilityZones returns the names of the UP zones in a region.
func (c *Connection) AvailabilityZones(ctx context.Context, region string) ([]string, error) {
	zones, err := c.raw.ListZones(ctx, c.projectID)
	if err != nil {
		return nil, convertRawError(err)
	}
	var names []string
	for _, zone := range zones {
		if zone.Status != "UP" {
			continue
		}
		if regionName(zone.Region) != region {
			continue
		}
		names = append(names, zone.Name)
	}
	return names, nil
}

// regionName extracts the bare region name from a zone's region URL.
func regionName(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[i+1:]
		}
	}
	return url
}
