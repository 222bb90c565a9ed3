// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/juju/errors"
)

// client is the seam between the environ and the ARM SDK. The real
// implementation hides the per-service clients and their pollers;
// tests fake this interface.
type client interface {
	ResourceGroupExists(ctx context.Context, name string) (bool, error)
	CreateResourceGroup(ctx context.Context, name, location string) error

	VirtualNetwork(ctx context.Context, rg, name string) (*armnetwork.VirtualNetwork, error)
	CreateVirtualNetwork(ctx context.Context, rg, name string, spec armnetwork.VirtualNetwork) error

	SecurityGroup(ctx context.Context, rg, name string) (*armnetwork.SecurityGroup, error)
	CreateSecurityGroup(ctx context.Context, rg, name string, spec armnetwork.SecurityGroup) error

	Subnets(ctx context.Context, rg, vnet string) ([]*armnetwork.Subnet, error)
	CreateSubnet(ctx context.Context, rg, vnet, name string, spec armnetwork.Subnet) (*armnetwork.Subnet, error)
	DeleteSubnet(ctx context.Context, rg, vnet, name string) error

	CreateNetworkInterface(ctx context.Context, rg, name string, spec armnetwork.Interface) (*armnetwork.Interface, error)
	DeleteNetworkInterface(ctx context.Context, rg, name string) error

	CreateVirtualMachine(ctx context.Context, rg, name string, spec armcompute.VirtualMachine) (*armcompute.VirtualMachine, error)
	DeleteVirtualMachine(ctx context.Context, rg, name string) error
}

// armClients bundles the generated ARM clients for one subscription.
type armClients struct {
	groups     *armresources.ResourceGroupsClient
	vnets      *armnetwork.VirtualNetworksClient
	subnets    *armnetwork.SubnetsClient
	nsgs       *armnetwork.SecurityGroupsClient
	interfaces *armnetwork.InterfacesClient
	vms        *armcompute.VirtualMachinesClient
}

var _ client = (*armClients)(nil)

// newClient builds the ARM clients, authenticating with the configured
// service principal or the default credential chain.
var newClient = func(ecfg *environConfig) (client, error) {
	var cred azcore.TokenCredential
	var err error
	if ecfg.appID() != "" {
		cred, err = azidentity.NewClientSecretCredential(ecfg.directoryID(), ecfg.appID(), ecfg.appPassword(), nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, errors.Annotate(err, "building credential")
	}

	sub := ecfg.subscriptionID()
	groups, err := armresources.NewResourceGroupsClient(sub, cred, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	vnets, err := armnetwork.NewVirtualNetworksClient(sub, cred, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	subnets, err := armnetwork.NewSubnetsClient(sub, cred, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	nsgs, err := armnetwork.NewSecurityGroupsClient(sub, cred, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	interfaces, err := armnetwork.NewInterfacesClient(sub, cred, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	vms, err := armcompute.NewVirtualMachinesClient(sub, cred, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &armClients{
		groups:     groups,
		vnets:      vnets,
		subnets:    subnets,
		nsgs:       nsgs,
		interfaces: interfaces,
		vms:        vms,
	}, nil
}

func (c *armClients) ResourceGroupExists(ctx context.Context, name string) (bool, error) {
	resp, err := c.groups.CheckExistence(ctx, name, nil)
	if err != nil {
		return false, convertResponseError(err)
	}
	return resp.Success, nil
}

func (c *armClients) CreateResourceGroup(ctx context.Context, name, location string) error {
	_, err := c.groups.CreateOrUpdate(ctx, name, armresources.ResourceGroup{
		Location: &location,
	}, nil)
	return convertResponseError(err)
}

func (c *armClients) VirtualNetwork(ctx context.Context, rg, name string) (*armnetwork.VirtualNetwork, error) {
	resp, err := c.vnets.Get(ctx, rg, name, nil)
	if err != nil {
		return nil, convertResponseError(err)
	}
	return &resp.VirtualNetwork, nil
}

func (c *armClients) CreateVirtualNetwork(ctx context.Context, rg, name string, spec armnetwork.VirtualNetwork) error {
	poller, err := c.vnets.BeginCreateOrUpdate(ctx, rg, name, spec, nil)
	if err != nil {
		return convertResponseError(err)
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return convertResponseError(err)
}

func (c *armClients) SecurityGroup(ctx context.Context, rg, name string) (*armnetwork.SecurityGroup, error) {
	resp, err := c.nsgs.Get(ctx, rg, name, nil)
	if err != nil {
		return nil, convertResponseError(err)
	}
	return &resp.SecurityGroup, nil
}

func (c *armClients) CreateSecurityGroup(ctx context.Context, rg, name string, spec armnetwork.SecurityGroup) error {
	poller, err := c.nsgs.BeginCreateOrUpdate(ctx, rg, name, spec, nil)
	if err != nil {
		return convertResponseError(err)
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return convertResponseError(err)
}

func (c *armClients) Subnets(ctx context.Context, rg, vnet string) ([]*armnetwork.Subnet, error) {
	var results []*armnetwork.Subnet
	pager := c.subnets.NewListPager(rg, vnet, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, convertResponseError(err)
		}
		results = append(results, page.Value...)
	}
	return results, nil
}

func (c *armClients) CreateSubnet(ctx context.Context, rg, vnet, name string, spec armnetwork.Subnet) (*armnetwork.Subnet, error) {
	poller, err := c.subnets.BeginCreateOrUpdate(ctx, rg, vnet, name, spec, nil)
	if err != nil {
		return nil, convertResponseError(err)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, convertResponseError(err)
	}
	return &resp.Subnet, nil
}

func (c *armClients) DeleteSubnet(ctx context.Context, rg, vnet, name string) error {
	poller, err := c.subnets.BeginDelete(ctx, rg, vnet, name, nil)
	if err != nil {
		return convertResponseError(err)
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return convertResponseError(err)
}

func (c *armClients) CreateNetworkInterface(ctx context.Context, rg, name string, spec armnetwork.Interface) (*armnetwork.Interface, error) {
	poller, err := c.interfaces.BeginCreateOrUpdate(ctx, rg, name, spec, nil)
	if err != nil {
		return nil, convertResponseError(err)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, convertResponseError(err)
	}
	return &resp.Interface, nil
}

func (c *armClients) DeleteNetworkInterface(ctx context.Context, rg, name string) error {
	poller, err := c.interfaces.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return convertResponseError(err)
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return convertResponseError(err)
}

func (c *armClients) CreateVirtualMachine(ctx context.Context, rg, name string, spec armcompute.VirtualMachine) (*armcompute.VirtualMachine, error) {
	poller, err := c.vms.BeginCreateOrUpdate(ctx, rg, name, spec, nil)
	if err != nil {
		return nil, convertResponseError(err)
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, convertResponseError(err)
	}
	return &resp.VirtualMachine, nil
}

func (c *armClients) DeleteVirtualMachine(ctx context.Context, rg, name string) error {
	poller, err := c.vms.BeginDelete(ctx, rg, name, nil)
	if err != nil {
		return convertResponseError(err)
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return convertResponseError(err)
}
