// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package google

import (
	"context"

	"google.golang.org/api/compute/v1"
)

// rawService is the thin seam over the generated GCE client, faked in
// tests. Every method returns exactly what the API returns; error
// conversion happens one layer up in Connection.
type rawService interface {
	GetNetwork(ctx context.Context, projectID, name string) (*compute.Network, error)
	InsertNetwork(ctx context.Context, projectID string, spec *compute.Network) (*compute.Operation, error)

	GetFirewall(ctx context.Context, projectID, name string) (*compute.Firewall, error)
	InsertFirewall(ctx context.Context, projectID string, spec *compute.Firewall) (*compute.Operation, error)

	ListSubnetworks(ctx context.Context, projectID, region string) ([]*compute.Subnetwork, error)
	InsertSubnetwork(ctx context.Context, projectID, region string, spec *compute.Subnetwork) (*compute.Operation, error)
	DeleteSubnetwork(ctx context.Context, projectID, region, name string) (*compute.Operation, error)

	GetInstance(ctx context.Context, projectID, zone, name string) (*compute.Instance, error)
	InsertInstance(ctx context.Context, projectID, zone string, spec *compute.Instance) (*compute.Operation, error)
	DeleteInstance(ctx context.Context, projectID, zone, name string) (*compute.Operation, error)

	ListZones(ctx context.Context, projectID string) ([]*compute.Zone, error)

	GetGlobalOperation(ctx context.Context, projectID, name string) (*compute.Operation, error)
	GetRegionOperation(ctx context.Context, projectID, region, name string) (*compute.Operation, error)
	GetZoneOperation(ctx context.Context, projectID, zone, name string) (*compute.Operation, error)
}

type rawConn struct {
	service *compute.Service
}

var _ rawService = (*rawConn)(nil)

func (c *rawConn) GetNetwork(ctx context.Context, projectID, name string) (*compute.Network, error) {
	return c.service.Networks.Get(projectID, name).Context(ctx).Do()
}

func (c *rawConn) InsertNetwork(ctx context.Context, projectID string, spec *compute.Network) (*compute.Operation, error) {
	return c.service.Networks.Insert(projectID, spec).Context(ctx).Do()
}

func (c *rawConn) GetFirewall(ctx context.Context, projectID, name string) (*compute.Firewall, error) {
	return c.service.Firewalls.Get(projectID, name).Context(ctx).Do()
}

func (c *rawConn) InsertFirewall(ctx context.Context, projectID string, spec *compute.Firewall) (*compute.Operation, error) {
	return c.service.Firewalls.Insert(projectID, spec).Context(ctx).Do()
}

func (c *rawConn) ListSubnetworks(ctx context.Context, projectID, region string) ([]*compute.Subnetwork, error) {
	var results []*compute.Subnetwork
	call := c.service.Subnetworks.List(projectID, region)
	err := call.Pages(ctx, func(page *compute.SubnetworkList) error {
		results = append(results, page.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *rawConn) InsertSubnetwork(ctx context.Context, projectID, region string, spec *compute.Subnetwork) (*compute.Operation, error) {
	return c.service.Subnetworks.Insert(projectID, region, spec).Context(ctx).Do()
}

func (c *rawConn) DeleteSubnetwork(ctx context.Context, projectID, region, name string) (*compute.Operation, error) {
	return c.service.Subnetworks.Delete(projectID, region, name).Context(ctx).Do()
}

func (c *rawConn) GetInstance(ctx context.Context, projectID, zone, name string) (*compute.Instance, error) {
	return c.service.Instances.Get(projectID, zone, name).Context(ctx).Do()
}

func (c *rawConn) InsertInstance(ctx context.Context, projectID, zone string, spec *compute.Instance) (*compute.Operation, error) {
	return c.service.Instances.Insert(projectID, zone, spec).Context(ctx).Do()
}

func (c *rawConn) DeleteInstance(ctx context.Context, projectID, zone, name string) (*compute.Operation, error) {
	return c.service.Instances.Delete(projectID, zone, name).Context(ctx).Do()
}

func (c *rawConn) ListZones(ctx context.Context, projectID string) ([]*compute.Zone, error) {
	var results []*compute.Zone
	call := c.service.Zones.List(projectID)
	err := call.Pages(ctx, func(page *compute.ZoneList) error {
		results = append(results, page.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *rawConn) GetGlobalOperation(ctx context.Context, projectID, name string) (*compute.Operation, error) {
	return c.service.GlobalOperations.Get(projectID, name).Context(ctx).Do()
}

func (c *rawConn) GetRegionOperation(ctx context.Context, projectID, region, name string) (*compute.Operation, error) {
	return c.service.RegionOperations.Get(projectID, region, name).Context(ctx).Do()
}

func (c *rawConn) GetZoneOperation(ctx context.Context, projectID, zone, name string) (*compute.Operation, error) {
	return c.service.ZoneOperations.Get(projectID, zone, name).Context(ctx).Do()
}
