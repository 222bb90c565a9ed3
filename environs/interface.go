// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package environs defines the interface between the deployment engine
// and the cloud providers. A provider turns a validated configuration
// into an Environ; the Environ exposes the small set of idempotent
// operations a deployment run is composed of.
package environs

import (
	"context"

	coreos "github.com/canonical/tenant-deployer/core/os"
	"github.com/canonical/tenant-deployer/core/resource"
	"github.com/canonical/tenant-deployer/environs/config"
)

// Provider represents a cloud that can host tenant deployments.
type Provider interface {
	// Validate checks the provider-specific attributes of cfg,
	// returning a configuration with provider defaults applied. If
	// old is non-nil it holds the previous configuration for the
	// same deployment.
	Validate(cfg, old *config.Config) (*config.Config, error)

	// Open returns an Environ for the given configuration. The
	// returned Environ holds authenticated clients; Open fails if
	// credentials are unusable.
	Open(ctx context.Context, args OpenParams) (Environ, error)
}

// OpenParams holds the parameters for a Provider.Open call.
type OpenParams struct {
	Config *config.Config
}

// Network describes a tenant's shared network.
type Network struct {
	// ID is the provider's identifier for the network, e.g. a VPC id.
	ID string
	// Name is the deterministic tenant network name.
	Name string
	// CIDR is the network's address range.
	CIDR string
}

// Subnet describes a deployment-local subnet within a tenant network.
type Subnet struct {
	ID   string
	Name string
	CIDR string
}

// Instance describes a provisioned virtual machine.
type Instance struct {
	// ID is the provider's identifier for the machine.
	ID string
	// Name is the configured instance name.
	Name string
	// PrivateAddress is the machine's address in the tenant network,
	// empty if the provider has not reported one yet.
	PrivateAddress string
}

// Credentials carries the instance login material. The values are
// opaque pass-throughs from configuration; nothing here generates or
// inspects them beyond presence checks.
type Credentials struct {
	User         string
	Password     string
	SSHPublicKey string
}

// StartInstanceParams holds the parameters for Environ.StartInstance.
type StartInstanceParams struct {
	Scope        resource.Scope
	Name         string
	OS           coreos.Kind
	Image        string
	InstanceType string
	Subnet       Subnet
	Credentials  Credentials
}

// An Environ is one cloud provider opened against one region and
// credential set.
//
// All Ensure operations are idempotent by contract: calls made
// concurrently by independent deployment runs against the same tenant
// scope must converge on a single shared resource, with the provider's
// uniqueness constraint as the arbiter. Results of these methods may not
// be fully sequentially consistent; a successful create may not be
// visible to an immediately following read.
type Environ interface {
	// EnsureTenantNetwork makes sure the scope's shared network
	// exists and returns it.
	EnsureTenantNetwork(ctx context.Context, scope resource.Scope) (Network, error)

	// EnsureBaselineRules makes sure the scope's baseline firewall
	// rules exist. The rule set depends on the OS kind: SSH ingress
	// for Linux, RDP/WinRM ingress for Windows.
	EnsureBaselineRules(ctx context.Context, scope resource.Scope, osKind coreos.Kind) error

	// Subnets returns the subnets currently present in the scope's
	// network. Used by the allocator to avoid drawing a taken range.
	Subnets(ctx context.Context, scope resource.Scope) ([]Subnet, error)

	// CreateSubnet creates the deployment-local subnet with the given
	// CIDR. Unlike the Ensure methods this is not get-or-create: the
	// name embeds the deployment id, so a clash means a bug rather
	// than a concurrent creator.
	CreateSubnet(ctx context.Context, scope resource.Scope, deploymentID, cidr string) (Subnet, error)

	// StartInstance creates the deployment's virtual machine and
	// waits for it to reach a running state.
	StartInstance(ctx context.Context, params StartInstanceParams) (Instance, error)

	// StopInstance destroys the named instance. Destroying an
	// instance that is already gone is not an error.
	StopInstance(ctx context.Context, scope resource.Scope, name string) error

	// DestroySubnet removes a deployment-local subnet. Removing a
	// subnet that is already gone is not an error.
	DestroySubnet(ctx context.Context, scope resource.Scope, deploymentID string) error
}
