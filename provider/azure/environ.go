// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/juju/errors"

	coreos "github.com/canonical/tenant-deployer/core/os"
	"github.com/canonical/tenant-deployer/core/resource"
	"github.com/canonical/tenant-deployer/environs"
	"github.com/canonical/tenant-deployer/provision"
)

type environ struct {
	ecfg   *environConfig
	client client
}

var _ environs.Environ = (*environ)(nil)

// EnsureTenantNetwork is part of the environs.Environ interface. The
// tenant resource group is created first; ARM's CreateOrUpdate is
// natively idempotent so the group needs no get-or-create guard. The
// virtual network inside it does.
func (e *environ) EnsureTenantNetwork(ctx context.Context, scope resource.Scope) (environs.Network, error) {
	rg := resourceGroupName(scope)
	exists, err := e.client.ResourceGroupExists(ctx, rg)
	if err != nil {
		return environs.Network{}, errors.Annotatef(err, "checking for resource group %q", rg)
	}
	if !exists {
		if err := e.client.CreateResourceGroup(ctx, rg, e.ecfg.Region()); err != nil {
			return environs.Network{}, errors.Annotatef(err, "ensuring resource group %q", rg)
		}
	}

	desc := resource.TenantNetwork(scope)
	err = provision.EnsureExists(ctx, desc, provision.Funcs{
		ExistsFunc: func(ctx context.Context, desc resource.Descriptor) (bool, error) {
			_, err := e.client.VirtualNetwork(ctx, rg, desc.Name)
			if errors.Is(err, errors.NotFound) {
				return false, nil
			}
			return err == nil, errors.Trace(err)
		},
		CreateFunc: func(ctx context.Context, desc resource.Descriptor) error {
			spec := armnetwork.VirtualNetwork{
				Location: to.Ptr(e.ecfg.Region()),
				Properties: &armnetwork.VirtualNetworkPropertiesFormat{
					AddressSpace: &armnetwork.AddressSpace{
						AddressPrefixes: []*string{to.Ptr(e.ecfg.BaseCIDR())},
					},
				},
			}
			return errors.Trace(e.client.CreateVirtualNetwork(ctx, rg, desc.Name, spec))
		},
	})
	if err != nil {
		return environs.Network{}, errors.Trace(err)
	}
	vnet, err := e.client.VirtualNetwork(ctx, rg, desc.Name)
	if err != nil {
		return environs.Network{}, errors.Trace(err)
	}
	return environs.Network{
		ID:   toValue(vnet.ID),
		Name: desc.Name,
		CIDR: e.ecfg.BaseCIDR(),
	}, nil
}

// baselineSecurityRules returns the inbound rules for an OS kind: SSH
// for Linux, RDP and WinRM for Windows.
func baselineSecurityRules(scope resource.Scope, osKind coreos.Kind) []*armnetwork.SecurityRule {
	rules := map[string]int32{"ssh": 22}
	if osKind == coreos.Windows {
		rules = map[string]int32{"rdp": 3389, "winrm": 5986}
	}
	var out []*armnetwork.SecurityRule
	var priority int32 = 100
	for _, label := range []string{"ssh", "rdp", "winrm"} {
		port, ok := rules[label]
		if !ok {
			continue
		}
		out = append(out, &armnetwork.SecurityRule{
			Name: to.Ptr(resource.BaselineRuleName(scope, label)),
			Properties: &armnetwork.SecurityRulePropertiesFormat{
				Protocol:                 to.Ptr(armnetwork.SecurityRuleProtocolTCP),
				SourceAddressPrefix:      to.Ptr("*"),
				SourcePortRange:          to.Ptr("*"),
				DestinationAddressPrefix: to.Ptr("*"),
				DestinationPortRange:     to.Ptr(fmt.Sprint(port)),
				Access:                   to.Ptr(armnetwork.SecurityRuleAccessAllow),
				Direction:                to.Ptr(armnetwork.SecurityRuleDirectionInbound),
				Priority:                 to.Ptr(priority),
			},
		})
		priority++
	}
	return out
}

// EnsureBaselineRules is part of the environs.Environ interface. The
// rule set rides in the network security group spec, so ensuring the
// group ensures the rules.
func (e *environ) EnsureBaselineRules(ctx context.Context, scope resource.Scope, osKind coreos.Kind) error {
	rg := resourceGroupName(scope)
	desc := resource.TenantSecurityGroup(scope)
	return errors.Trace(provision.EnsureExists(ctx, desc, provision.Funcs{
		ExistsFunc: func(ctx context.Context, desc resource.Descriptor) (bool, error) {
			_, err := e.client.SecurityGroup(ctx, rg, desc.Name)
			if errors.Is(err, errors.NotFound) {
				return false, nil
			}
			return err == nil, errors.Trace(err)
		},
		CreateFunc: func(ctx context.Context, desc resource.Descriptor) error {
			spec := armnetwork.SecurityGroup{
				Location: to.Ptr(e.ecfg.Region()),
				Properties: &armnetwork.SecurityGroupPropertiesFormat{
					SecurityRules: baselineSecurityRules(scope, osKind),
				},
			}
			return errors.Trace(e.client.CreateSecurityGroup(ctx, rg, desc.Name, spec))
		},
	}))
}

// Subnets is part of the environs.Environ interface.
func (e *environ) Subnets(ctx context.Context, scope resource.Scope) ([]environs.Subnet, error) {
	rg := resourceGroupName(scope)
	raw, err := e.client.Subnets(ctx, rg, resource.TenantNetworkName(scope))
	if errors.Is(err, errors.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	subnets := make([]environs.Subnet, 0, len(raw))
	for _, s := range raw {
		subnet := environs.Subnet{
			ID:   toValue(s.ID),
			Name: toValue(s.Name),
		}
		if s.Properties != nil {
			subnet.CIDR = toValue(s.Properties.AddressPrefix)
		}
		subnets = append(subnets, subnet)
	}
	return subnets, nil
}

// CreateSubnet is part of the environs.Environ interface. The subnet is
// associated with the tenant security group so the baseline rules apply
// to everything in it.
func (e *environ) CreateSubnet(ctx context.Context, scope resource.Scope, deploymentID, cidr string) (environs.Subnet, error) {
	rg := resourceGroupName(scope)
	nsg, err := e.client.SecurityGroup(ctx, rg, resource.TenantSecurityGroupName(scope))
	if err != nil {
		return environs.Subnet{}, errors.Annotate(err, "baseline security group must exist before subnets")
	}
	name := resource.DeploymentSubnetName(scope, deploymentID)
	spec := armnetwork.Subnet{
		Properties: &armnetwork.SubnetPropertiesFormat{
			AddressPrefix: to.Ptr(cidr),
			NetworkSecurityGroup: &armnetwork.SecurityGroup{
				ID: nsg.ID,
			},
		},
	}
	created, err := e.client.CreateSubnet(ctx, rg, resource.TenantNetworkName(scope), name, spec)
	if err != nil {
		return environs.Subnet{}, errors.Annotatef(err, "creating subnet %q", name)
	}
	return environs.Subnet{
		ID:   toValue(created.ID),
		Name: name,
		CIDR: cidr,
	}, nil
}

// parseImage splits an image reference of the form
// publisher:offer:sku:version.
func parseImage(image string) (*armcompute.ImageReference, error) {
	parts := strings.Split(image, ":")
	if len(parts) != 4 {
		return nil, errors.NotValidf("image %q (expected publisher:offer:sku:version)", image)
	}
	return &armcompute.ImageReference{
		Publisher: to.Ptr(parts[0]),
		Offer:     to.Ptr(parts[1]),
		SKU:       to.Ptr(parts[2]),
		Version:   to.Ptr(parts[3]),
	}, nil
}

func nicName(instanceName string) string {
	return instanceName + "-nic0"
}

func osProfile(name string, osKind coreos.Kind, creds environs.Credentials) *armcompute.OSProfile {
	profile := &armcompute.OSProfile{
		ComputerName:  to.Ptr(name),
		AdminUsername: to.Ptr(creds.User),
	}
	switch osKind {
	case coreos.Windows:
		profile.AdminPassword = to.Ptr(creds.Password)
		profile.WindowsConfiguration = &armcompute.WindowsConfiguration{
			EnableAutomaticUpdates: to.Ptr(true),
		}
	default:
		profile.LinuxConfiguration = &armcompute.LinuxConfiguration{
			DisablePasswordAuthentication: to.Ptr(true),
			SSH: &armcompute.SSHConfiguration{
				PublicKeys: []*armcompute.SSHPublicKey{{
					Path:    to.Ptr(fmt.Sprintf("/home/%s/.ssh/authorized_keys", creds.User)),
					KeyData: to.Ptr(creds.SSHPublicKey),
				}},
			},
		}
	}
	return profile
}

// StartInstance is part of the environs.Environ interface. The VM needs
// its own NIC in the deployment subnet; both are deployment-local and
// torn down together.
func (e *environ) StartInstance(ctx context.Context, params environs.StartInstanceParams) (environs.Instance, error) {
	rg := resourceGroupName(params.Scope)
	imageRef, err := parseImage(params.Image)
	if err != nil {
		return environs.Instance{}, errors.Trace(err)
	}

	nicSpec := armnetwork.Interface{
		Location: to.Ptr(e.ecfg.Region()),
		Properties: &armnetwork.InterfacePropertiesFormat{
			IPConfigurations: []*armnetwork.InterfaceIPConfiguration{{
				Name: to.Ptr("primary"),
				Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
					Subnet:                    &armnetwork.Subnet{ID: to.Ptr(params.Subnet.ID)},
					PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
				},
			}},
		},
	}
	nic, err := e.client.CreateNetworkInterface(ctx, rg, nicName(params.Name), nicSpec)
	if err != nil {
		return environs.Instance{}, errors.Annotatef(err, "creating network interface for %q", params.Name)
	}

	vmSpec := armcompute.VirtualMachine{
		Location: to.Ptr(e.ecfg.Region()),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(params.InstanceType)),
			},
			StorageProfile: &armcompute.StorageProfile{
				ImageReference: imageRef,
			},
			OSProfile: osProfile(params.Name, params.OS, params.Credentials),
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{{
					ID: nic.ID,
				}},
			},
		},
	}
	vm, err := e.client.CreateVirtualMachine(ctx, rg, params.Name, vmSpec)
	if err != nil {
		return environs.Instance{}, errors.Annotatef(err, "creating virtual machine %q", params.Name)
	}

	inst := environs.Instance{
		ID:   toValue(vm.ID),
		Name: params.Name,
	}
	if nic.Properties != nil && len(nic.Properties.IPConfigurations) > 0 {
		ipcfg := nic.Properties.IPConfigurations[0]
		if ipcfg.Properties != nil {
			inst.PrivateAddress = toValue(ipcfg.Properties.PrivateIPAddress)
		}
	}
	return inst, nil
}

// StopInstance is part of the environs.Environ interface.
func (e *environ) StopInstance(ctx context.Context, scope resource.Scope, name string) error {
	rg := resourceGroupName(scope)
	if err := e.client.DeleteVirtualMachine(ctx, rg, name); err != nil {
		return errors.Annotatef(err, "deleting virtual machine %q", name)
	}
	if err := e.client.DeleteNetworkInterface(ctx, rg, nicName(name)); err != nil && !errors.Is(err, errors.NotFound) {
		return errors.Annotatef(err, "deleting network interface for %q", name)
	}
	return nil
}

// DestroySubnet is part of the environs.Environ interface.
func (e *environ) DestroySubnet(ctx context.Context, scope resource.Scope, deploymentID string) error {
	rg := resourceGroupName(scope)
	name := resource.DeploymentSubnetName(scope, deploymentID)
	return errors.Annotatef(
		e.client.DeleteSubnet(ctx, rg, resource.TenantNetworkName(scope), name),
		"deleting subnet %q", name)
}
