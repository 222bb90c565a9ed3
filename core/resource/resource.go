// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package resource defines the logical resource model shared by all
// cloud backends: resource kinds, descriptors and the tenant scope that
// groups shared infrastructure. Names are deterministic functions of the
// tenant id and resource kind, so concurrent provisioners converge on
// the same name and the backing store's uniqueness constraint arbitrates.
package resource

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
)

// Kind identifies the category of a provisioned resource.
type Kind string

const (
	KindNetwork       Kind = "network"
	KindSubnet        Kind = "subnet"
	KindFirewallRule  Kind = "firewall-rule"
	KindSecurityGroup Kind = "security-group"
	KindInstance      Kind = "instance"
)

// Scope is a tenant scope. All shared resources for a tenant live in
// exactly one scope; the scope itself is created lazily by the first
// deployment and persists indefinitely.
type Scope struct {
	Tenant string
}

// Validate returns an error if the scope's tenant id is not usable as a
// resource name component. Tenant ids follow the same rules as model
// names: lowercase alphanumeric with interior hyphens.
func (s Scope) Validate() error {
	if s.Tenant == "" {
		return errors.NotValidf("empty tenant id")
	}
	if !names.IsValidModelName(s.Tenant) {
		return errors.NotValidf("tenant id %q", s.Tenant)
	}
	if len(s.Tenant) > 40 {
		return errors.NotValidf("tenant id %q longer than 40 characters", s.Tenant)
	}
	return nil
}

func (s Scope) String() string {
	return s.Tenant
}

// Descriptor identifies a single provisioned resource. Descriptors are
// value objects: created once, never mutated.
type Descriptor struct {
	Kind  Kind
	Name  string
	Scope Scope
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %q (tenant %s)", d.Kind, d.Name, d.Scope.Tenant)
}

// Validate returns an error if the descriptor is incomplete.
func (d Descriptor) Validate() error {
	switch d.Kind {
	case KindNetwork, KindSubnet, KindFirewallRule, KindSecurityGroup, KindInstance:
	default:
		return errors.NotValidf("resource kind %q", d.Kind)
	}
	if d.Name == "" {
		return errors.NotValidf("empty resource name")
	}
	return errors.Trace(d.Scope.Validate())
}

// TenantNetworkName returns the name of the shared network for a tenant
// scope. There is at most one per scope.
func TenantNetworkName(s Scope) string {
	return fmt.Sprintf("tenant-%s-net", s.Tenant)
}

// TenantSecurityGroupName returns the name of the shared baseline
// security group (or firewall rule set) for a tenant scope.
func TenantSecurityGroupName(s Scope) string {
	return fmt.Sprintf("tenant-%s-sg", s.Tenant)
}

// BaselineRuleName returns the name of a single baseline firewall rule
// within a tenant scope. The rule label distinguishes rules within the
// set, e.g. "ssh" or "rdp".
func BaselineRuleName(s Scope, rule string) string {
	return fmt.Sprintf("tenant-%s-allow-%s", s.Tenant, rule)
}

// DeploymentSubnetName returns the name of a deployment-local subnet.
// Unlike shared resources the name embeds the deployment id so that
// concurrent deployments for the same tenant never contend for it.
func DeploymentSubnetName(s Scope, deploymentID string) string {
	return fmt.Sprintf("tenant-%s-dep-%s", s.Tenant, deploymentID)
}

// TenantNetwork returns the descriptor for the shared tenant network.
func TenantNetwork(s Scope) Descriptor {
	return Descriptor{Kind: KindNetwork, Name: TenantNetworkName(s), Scope: s}
}

// TenantSecurityGroup returns the descriptor for the shared baseline
// security group.
func TenantSecurityGroup(s Scope) Descriptor {
	return Descriptor{Kind: KindSecurityGroup, Name: TenantSecurityGroupName(s), Scope: s}
}

// BaselineRule returns the descriptor for a single baseline rule.
func BaselineRule(s Scope, rule string) Descriptor {
	return Descriptor{Kind: KindFirewallRule, Name: BaselineRuleName(s, rule), Scope: s}
}

// DeploymentSubnet returns the descriptor for a deployment-local subnet.
func DeploymentSubnet(s Scope, deploymentID string) Descriptor {
	return Descriptor{Kind: KindSubnet, Name: DeploymentSubnetName(s, deploymentID), Scope: s}
}
