// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package gce

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"google.golang.org/api/compute/v1"

	coreos "github.com/canonical/tenant-deployer/core/os"
	"github.com/canonical/tenant-deployer/core/resource"
	"github.com/canonical/tenant-deployer/environs"
	"github.com/canonical/tenant-deployer/provision"
)

// gceConnection is the slice of the google.Connection surface the
// environ depends on, kept as an interface so tests can fake it.
type gceConnection interface {
	Network(ctx context.Context, name string) (*compute.Network, error)
	CreateNetwork(ctx context.Context, spec *compute.Network) error

	Firewall(ctx context.Context, name string) (*compute.Firewall, error)
	CreateFirewall(ctx context.Context, spec *compute.Firewall) error

	Subnetworks(ctx context.Context, region string) ([]*compute.Subnetwork, error)
	CreateSubnetwork(ctx context.Context, region string, spec *compute.Subnetwork) error
	DeleteSubnetwork(ctx context.Context, region, name string) error

	Instance(ctx context.Context, zone, name string) (*compute.Instance, error)
	CreateInstance(ctx context.Context, zone string, spec *compute.Instance) error
	DeleteInstance(ctx context.Context, zone, name string) error

	AvailabilityZones(ctx context.Context, region string) ([]string, error)
}

const (
	runningPollDelay  = 5 * time.Second
	runningPollWindow = 5 * time.Minute
)

type environ struct {
	ecfg  *environConfig
	gce   gceConnection
	clock clock.Clock
}

var _ environs.Environ = (*environ)(nil)

// EnsureTenantNetwork is part of the environs.Environ interface.
func (e *environ) EnsureTenantNetwork(ctx context.Context, scope resource.Scope) (environs.Network, error) {
	desc := resource.TenantNetwork(scope)
	err := provision.EnsureExists(ctx, desc, provision.Funcs{
		ExistsFunc: func(ctx context.Context, desc resource.Descriptor) (bool, error) {
			_, err := e.gce.Network(ctx, desc.Name)
			if errors.Is(err, errors.NotFound) {
				return false, nil
			}
			return err == nil, errors.Trace(err)
		},
		CreateFunc: func(ctx context.Context, desc resource.Descriptor) error {
			spec := &compute.Network{
				Name:                  desc.Name,
				AutoCreateSubnetworks: false,
				// The zero value must go on the wire or the API
				// defaults to auto mode.
				ForceSendFields: []string{"AutoCreateSubnetworks"},
			}
			return errors.Trace(e.gce.CreateNetwork(ctx, spec))
		},
	})
	if err != nil {
		return environs.Network{}, errors.Trace(err)
	}
	network, err := e.gce.Network(ctx, desc.Name)
	if err != nil {
		return environs.Network{}, errors.Trace(err)
	}
	return environs.Network{
		ID:   strconv.FormatUint(network.Id, 10),
		Name: network.Name,
		CIDR: e.ecfg.BaseCIDR(),
	}, nil
}

// baselineRules returns the firewall rules for an OS kind: SSH for
// Linux, RDP and WinRM for Windows.
func baselineRules(osKind coreos.Kind) map[string][]string {
	if osKind == coreos.Windows {
		return map[string][]string{"rdp": {"3389"}, "winrm": {"5986"}}
	}
	return map[string][]string{"ssh": {"22"}}
}

// EnsureBaselineRules is part of the environs.Environ interface.
func (e *environ) EnsureBaselineRules(ctx context.Context, scope resource.Scope, osKind coreos.Kind) error {
	network, err := e.gce.Network(ctx, resource.TenantNetworkName(scope))
	if err != nil {
		return errors.Annotate(err, "tenant network must exist before baseline rules")
	}
	for label, ports := range baselineRules(osKind) {
		ports := ports
		desc := resource.BaselineRule(scope, label)
		err := provision.EnsureExists(ctx, desc, provision.Funcs{
			ExistsFunc: func(ctx context.Context, desc resource.Descriptor) (bool, error) {
				_, err := e.gce.Firewall(ctx, desc.Name)
				if errors.Is(err, errors.NotFound) {
					return false, nil
				}
				return err == nil, errors.Trace(err)
			},
			CreateFunc: func(ctx context.Context, desc resource.Descriptor) error {
				spec := &compute.Firewall{
					Name:         desc.Name,
					Network:      network.SelfLink,
					SourceRanges: []string{"0.0.0.0/0"},
					Allowed: []*compute.FirewallAllowed{{
						IPProtocol: "tcp",
						Ports:      ports,
					}},
				}
				return errors.Trace(e.gce.CreateFirewall(ctx, spec))
			},
		})
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Subnets is part of the environs.Environ interface. Only subnetworks
// attached to the tenant network are reported.
func (e *environ) Subnets(ctx context.Context, scope resource.Scope) ([]environs.Subnet, error) {
	network, err := e.gce.Network(ctx, resource.TenantNetworkName(scope))
	if errors.Is(err, errors.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	all, err := e.gce.Subnetworks(ctx, e.ecfg.Region())
	if err != nil {
		return nil, errors.Trace(err)
	}
	var subnets []environs.Subnet
	for _, s := range all {
		if s.Network != network.SelfLink {
			continue
		}
		subnets = append(subnets, environs.Subnet{
			ID:   strconv.FormatUint(s.Id, 10),
			Name: s.Name,
			CIDR: s.IpCidrRange,
		})
	}
	return subnets, nil
}

// CreateSubnet is part of the environs.Environ interface.
func (e *environ) CreateSubnet(ctx context.Context, scope resource.Scope, deploymentID, cidr string) (environs.Subnet, error) {
	network, err := e.gce.Network(ctx, resource.TenantNetworkName(scope))
	if err != nil {
		return environs.Subnet{}, errors.Trace(err)
	}
	name := resource.DeploymentSubnetName(scope, deploymentID)
	spec := &compute.Subnetwork{
		Name:        name,
		Network:     network.SelfLink,
		IpCidrRange: cidr,
	}
	if err := e.gce.CreateSubnetwork(ctx, e.ecfg.Region(), spec); err != nil {
		return environs.Subnet{}, errors.Annotatef(err, "creating subnetwork %q", name)
	}
	return environs.Subnet{Name: name, CIDR: cidr}, nil
}

// zone returns the configured availability zone, or the first UP zone
// in the region.
func (e *environ) zone(ctx context.Context) (string, error) {
	if zone := e.ecfg.Zone(); zone != "" {
		return zone, nil
	}
	zones, err := e.gce.AvailabilityZones(ctx, e.ecfg.Region())
	if err != nil {
		return "", errors.Trace(err)
	}
	if len(zones) == 0 {
		return "", errors.NotFoundf("zones in region %q", e.ecfg.Region())
	}
	return zones[0], nil
}

// instanceMetadata renders the metadata items that inject the
// pass-through credentials.
func instanceMetadata(osKind coreos.Kind, creds environs.Credentials) *compute.Metadata {
	var items []*compute.MetadataItems
	strPtr := func(s string) *string { return &s }
	switch osKind {
	case coreos.Windows:
		script := fmt.Sprintf("net user %s %s /add /y & net localgroup Administrators %s /add",
			creds.User, creds.Password, creds.User)
		items = append(items, &compute.MetadataItems{
			Key:   "sysprep-specialize-script-cmd",
			Value: strPtr(script),
		})
	default:
		items = append(items, &compute.MetadataItems{
			Key:   "ssh-keys",
			Value: strPtr(fmt.Sprintf("%s:%s", creds.User, creds.SSHPublicKey)),
		})
	}
	return &compute.Metadata{Items: items}
}

// StartInstance is part of the environs.Environ interface.
func (e *environ) StartInstance(ctx context.Context, params environs.StartInstanceParams) (environs.Instance, error) {
	zone, err := e.zone(ctx)
	if err != nil {
		return environs.Instance{}, errors.Trace(err)
	}
	network, err := e.gce.Network(ctx, resource.TenantNetworkName(params.Scope))
	if err != nil {
		return environs.Instance{}, errors.Trace(err)
	}
	spec := &compute.Instance{
		Name:        params.Name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", zone, params.InstanceType),
		Disks: []*compute.AttachedDisk{{
			Boot:       true,
			AutoDelete: true,
			InitializeParams: &compute.AttachedDiskInitializeParams{
				SourceImage: params.Image,
			},
		}},
		NetworkInterfaces: []*compute.NetworkInterface{{
			Network:    network.SelfLink,
			Subnetwork: fmt.Sprintf("regions/%s/subnetworks/%s", e.ecfg.Region(), params.Subnet.Name),
		}},
		Metadata: instanceMetadata(params.OS, params.Credentials),
	}
	if err := e.gce.CreateInstance(ctx, zone, spec); err != nil {
		return environs.Instance{}, errors.Annotatef(err, "starting instance %q", params.Name)
	}
	inst, err := e.waitRunning(ctx, zone, params.Name)
	if err != nil {
		return environs.Instance{}, errors.Trace(err)
	}
	result := environs.Instance{
		ID:   strconv.FormatUint(inst.Id, 10),
		Name: inst.Name,
	}
	if len(inst.NetworkInterfaces) > 0 {
		result.PrivateAddress = inst.NetworkInterfaces[0].NetworkIP
	}
	return result, nil
}

var errNotRunning = errors.New("instance not yet running")

func (e *environ) waitRunning(ctx context.Context, zone, name string) (*compute.Instance, error) {
	var inst *compute.Instance
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			candidate, err := e.gce.Instance(ctx, zone, name)
			if err != nil {
				return errors.Trace(err)
			}
			if candidate.Status != "RUNNING" {
				return errNotRunning
			}
			inst = candidate
			return nil
		},
		IsFatalError: func(err error) bool {
			return err != errNotRunning
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("waiting for instance %s (attempt %d)", name, attempt)
		},
		Delay:       runningPollDelay,
		MaxDuration: runningPollWindow,
		Clock:       e.clock,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "waiting for instance %q to run", name)
	}
	return inst, nil
}

// StopInstance is part of the environs.Environ interface.
func (e *environ) StopInstance(ctx context.Context, scope resource.Scope, name string) error {
	zone, err := e.zone(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(e.gce.DeleteInstance(ctx, zone, name), "deleting instance %q", name)
}

// DestroySubnet is part of the environs.Environ interface.
func (e *environ) DestroySubnet(ctx context.Context, scope resource.Scope, deploymentID string) error {
	name := resource.DeploymentSubnetName(scope, deploymentID)
	return errors.Annotatef(e.gce.DeleteSubnetwork(ctx, e.ecfg.Region(), name), "deleting subnetwork %q", name)
}
