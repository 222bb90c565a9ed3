// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ec2

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	coreos "github.com/canonical/tenant-deployer/core/os"
	"github.com/canonical/tenant-deployer/core/resource"
	"github.com/canonical/tenant-deployer/environs"
	"github.com/canonical/tenant-deployer/provision"
)

// scopeTagKey marks every resource owned by this tool with its tenant.
const scopeTagKey = "tenant-deployer:scope"

const (
	runningPollDelay  = 5 * time.Second
	runningPollWindow = 5 * time.Minute
)

type environ struct {
	ecfg   *environConfig
	client Client
	clock  clock.Clock
}

var _ environs.Environ = (*environ)(nil)

func tagSpec(rt ec2types.ResourceType, desc resource.Descriptor) ec2types.TagSpecification {
	return ec2types.TagSpecification{
		ResourceType: rt,
		Tags: []ec2types.Tag{
			{Key: strPtr("Name"), Value: strPtr(desc.Name)},
			{Key: strPtr(scopeTagKey), Value: strPtr(desc.Scope.Tenant)},
		},
	}
}

func nameFilters(name string) []ec2types.Filter {
	return []ec2types.Filter{{
		Name:   strPtr("tag:Name"),
		Values: []string{name},
	}}
}

// EnsureTenantNetwork is part of the environs.Environ interface.
//
// EC2 has no uniqueness constraint on Name tags, so the describe-then-
// create window here is the same one the underlying API leaves open.
// Deterministic naming keeps racing creators aimed at one logical
// network and the read below settles on whichever VPC won.
func (e *environ) EnsureTenantNetwork(ctx context.Context, scope resource.Scope) (environs.Network, error) {
	desc := resource.TenantNetwork(scope)
	err := provision.EnsureExists(ctx, desc, provision.Funcs{
		ExistsFunc: func(ctx context.Context, desc resource.Descriptor) (bool, error) {
			vpc, err := e.vpcByName(ctx, desc.Name)
			if errors.Is(err, errors.NotFound) {
				return false, nil
			}
			if err != nil {
				return false, errors.Trace(err)
			}
			return vpc != nil, nil
		},
		CreateFunc: func(ctx context.Context, desc resource.Descriptor) error {
			_, err := e.client.CreateVpc(ctx, &ec2.CreateVpcInput{
				CidrBlock:         strPtr(e.ecfg.BaseCIDR()),
				TagSpecifications: []ec2types.TagSpecification{tagSpec(ec2types.ResourceTypeVpc, desc)},
			})
			return maybeConvertError(err)
		},
	})
	if err != nil {
		return environs.Network{}, errors.Trace(err)
	}
	vpc, err := e.vpcWhenVisible(ctx, desc.Name)
	if err != nil {
		return environs.Network{}, errors.Trace(err)
	}
	return environs.Network{
		ID:   awssdk.ToString(vpc.VpcId),
		Name: desc.Name,
		CIDR: awssdk.ToString(vpc.CidrBlock),
	}, nil
}

func (e *environ) vpcByName(ctx context.Context, name string) (*ec2types.Vpc, error) {
	out, err := e.client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: nameFilters(name)})
	if err != nil {
		return nil, maybeConvertError(err)
	}
	if len(out.Vpcs) == 0 {
		return nil, errors.NotFoundf("VPC %q", name)
	}
	return &out.Vpcs[0], nil
}

// vpcWhenVisible reads the tenant VPC back after an ensure, polling
// briefly because a freshly created VPC may not be visible to an
// immediately following describe.
func (e *environ) vpcWhenVisible(ctx context.Context, name string) (*ec2types.Vpc, error) {
	var vpc *ec2types.Vpc
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			vpc, err = e.vpcByName(ctx, name)
			return err
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errors.NotFound)
		},
		Delay:    time.Second,
		Attempts: 5,
		Clock:    e.clock,
	})
	return vpc, errors.Trace(err)
}

// baselineIngress returns the ingress permissions for an OS kind:
// SSH for Linux, RDP and WinRM for Windows.
func baselineIngress(osKind coreos.Kind) []ec2types.IpPermission {
	ports := []int32{22}
	if osKind == coreos.Windows {
		ports = []int32{3389, 5986}
	}
	perms := make([]ec2types.IpPermission, len(ports))
	for i, port := range ports {
		perms[i] = ec2types.IpPermission{
			IpProtocol: strPtr("tcp"),
			FromPort:   awssdk.Int32(port),
			ToPort:     awssdk.Int32(port),
			IpRanges:   []ec2types.IpRange{{CidrIp: strPtr("0.0.0.0/0")}},
		}
	}
	return perms
}

// EnsureBaselineRules is part of the environs.Environ interface.
func (e *environ) EnsureBaselineRules(ctx context.Context, scope resource.Scope, osKind coreos.Kind) error {
	vpc, err := e.vpcByName(ctx, resource.TenantNetworkName(scope))
	if err != nil {
		return errors.Annotate(err, "tenant network must exist before baseline rules")
	}
	desc := resource.TenantSecurityGroup(scope)
	err = provision.EnsureExists(ctx, desc, provision.Funcs{
		ExistsFunc: func(ctx context.Context, desc resource.Descriptor) (bool, error) {
			_, err := e.groupByName(ctx, desc.Name)
			if errors.Is(err, errors.NotFound) {
				return false, nil
			}
			return err == nil, errors.Trace(err)
		},
		CreateFunc: func(ctx context.Context, desc resource.Descriptor) error {
			_, err := e.client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
				GroupName:         strPtr(desc.Name),
				Description:       strPtr(fmt.Sprintf("baseline rules for tenant %s", desc.Scope.Tenant)),
				VpcId:             vpc.VpcId,
				TagSpecifications: []ec2types.TagSpecification{tagSpec(ec2types.ResourceTypeSecurityGroup, desc)},
			})
			return maybeConvertError(err)
		},
	})
	if err != nil {
		return errors.Trace(err)
	}

	group, err := e.groupWhenVisible(ctx, desc.Name)
	if err != nil {
		return errors.Trace(err)
	}
	for _, perm := range baselineIngress(osKind) {
		perm := perm
		ruleDesc := resource.BaselineRule(scope, fmt.Sprintf("tcp-%d", awssdk.ToInt32(perm.FromPort)))
		err := provision.EnsureExists(ctx, ruleDesc, provision.Funcs{
			ExistsFunc: func(ctx context.Context, _ resource.Descriptor) (bool, error) {
				return groupHasIngress(group, perm), nil
			},
			CreateFunc: func(ctx context.Context, _ resource.Descriptor) error {
				_, err := e.client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
					GroupId:       group.GroupId,
					IpPermissions: []ec2types.IpPermission{perm},
				})
				return maybeConvertError(err)
			},
		})
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (e *environ) groupByName(ctx context.Context, name string) (*ec2types.SecurityGroup, error) {
	out, err := e.client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{{Name: strPtr("group-name"), Values: []string{name}}},
	})
	if err != nil {
		return nil, maybeConvertError(err)
	}
	if len(out.SecurityGroups) == 0 {
		return nil, errors.NotFoundf("security group %q", name)
	}
	return &out.SecurityGroups[0], nil
}

// groupWhenVisible reads the tenant security group back after an
// ensure, polling briefly for the same read-after-create window the
// VPC path has.
func (e *environ) groupWhenVisible(ctx context.Context, name string) (*ec2types.SecurityGroup, error) {
	var group *ec2types.SecurityGroup
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			group, err = e.groupByName(ctx, name)
			return err
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errors.NotFound)
		},
		Delay:    time.Second,
		Attempts: 5,
		Clock:    e.clock,
	})
	return group, errors.Trace(err)
}

func groupHasIngress(group *ec2types.SecurityGroup, perm ec2types.IpPermission) bool {
	for _, have := range group.IpPermissions {
		if awssdk.ToString(have.IpProtocol) == awssdk.ToString(perm.IpProtocol) &&
			awssdk.ToInt32(have.FromPort) == awssdk.ToInt32(perm.FromPort) &&
			awssdk.ToInt32(have.ToPort) == awssdk.ToInt32(perm.ToPort) {
			return true
		}
	}
	return false
}

// Subnets is part of the environs.Environ interface.
func (e *environ) Subnets(ctx context.Context, scope resource.Scope) ([]environs.Subnet, error) {
	vpc, err := e.vpcByName(ctx, resource.TenantNetworkName(scope))
	if errors.Is(err, errors.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	out, err := e.client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{{Name: strPtr("vpc-id"), Values: []string{awssdk.ToString(vpc.VpcId)}}},
	})
	if err != nil {
		return nil, maybeConvertError(err)
	}
	subnets := make([]environs.Subnet, 0, len(out.Subnets))
	for _, s := range out.Subnets {
		subnets = append(subnets, environs.Subnet{
			ID:   awssdk.ToString(s.SubnetId),
			Name: tagValue(s.Tags, "Name"),
			CIDR: awssdk.ToString(s.CidrBlock),
		})
	}
	return subnets, nil
}

func tagValue(tags []ec2types.Tag, key string) string {
	for _, tag := range tags {
		if awssdk.ToString(tag.Key) == key {
			return awssdk.ToString(tag.Value)
		}
	}
	return ""
}

// CreateSubnet is part of the environs.Environ interface.
func (e *environ) CreateSubnet(ctx context.Context, scope resource.Scope, deploymentID, cidr string) (environs.Subnet, error) {
	vpc, err := e.vpcByName(ctx, resource.TenantNetworkName(scope))
	if err != nil {
		return environs.Subnet{}, errors.Trace(err)
	}
	desc := resource.DeploymentSubnet(scope, deploymentID)
	input := &ec2.CreateSubnetInput{
		VpcId:             vpc.VpcId,
		CidrBlock:         strPtr(cidr),
		TagSpecifications: []ec2types.TagSpecification{tagSpec(ec2types.ResourceTypeSubnet, desc)},
	}
	if zone := e.ecfg.Zone(); zone != "" {
		input.AvailabilityZone = strPtr(zone)
	}
	out, err := e.client.CreateSubnet(ctx, input)
	if err != nil {
		return environs.Subnet{}, errors.Annotatef(maybeConvertError(err), "creating subnet %q", desc.Name)
	}
	return environs.Subnet{
		ID:   awssdk.ToString(out.Subnet.SubnetId),
		Name: desc.Name,
		CIDR: cidr,
	}, nil
}

// userData renders the minimal boot configuration that injects the
// pass-through credentials, base64 encoded as RunInstances requires.
func userData(osKind coreos.Kind, creds environs.Credentials) string {
	var script string
	switch osKind {
	case coreos.Windows:
		script = fmt.Sprintf("<powershell>\nnet user %s '%s' /add /y\nnet localgroup Administrators %s /add\n</powershell>",
			creds.User, creds.Password, creds.User)
	default:
		script = fmt.Sprintf("#cloud-config\nusers:\n- name: %s\n  ssh_authorized_keys:\n  - %s\n  sudo: ALL=(ALL) NOPASSWD:ALL\n",
			creds.User, creds.SSHPublicKey)
	}
	return base64.StdEncoding.EncodeToString([]byte(script))
}

// StartInstance is part of the environs.Environ interface.
func (e *environ) StartInstance(ctx context.Context, params environs.StartInstanceParams) (environs.Instance, error) {
	group, err := e.groupByName(ctx, resource.TenantSecurityGroupName(params.Scope))
	if err != nil {
		return environs.Instance{}, errors.Trace(err)
	}
	desc := resource.Descriptor{Kind: resource.KindInstance, Name: params.Name, Scope: params.Scope}
	out, err := e.client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:           strPtr(params.Image),
		InstanceType:      ec2types.InstanceType(params.InstanceType),
		MinCount:          awssdk.Int32(1),
		MaxCount:          awssdk.Int32(1),
		SubnetId:          strPtr(params.Subnet.ID),
		SecurityGroupIds:  []string{awssdk.ToString(group.GroupId)},
		UserData:          strPtr(userData(params.OS, params.Credentials)),
		TagSpecifications: []ec2types.TagSpecification{tagSpec(ec2types.ResourceTypeInstance, desc)},
	})
	if err != nil {
		return environs.Instance{}, errors.Annotatef(maybeConvertError(err), "starting instance %q", params.Name)
	}
	id := awssdk.ToString(out.Instances[0].InstanceId)
	inst, err := e.waitRunning(ctx, id)
	if err != nil {
		return environs.Instance{}, errors.Trace(err)
	}
	return environs.Instance{
		ID:             id,
		Name:           params.Name,
		PrivateAddress: awssdk.ToString(inst.PrivateIpAddress),
	}, nil
}

var errNotRunning = errors.New("instance not yet running")

// waitRunning polls until the instance reports a running state. Only
// the not-yet-running condition is retried; API errors surface
// immediately.
func (e *environ) waitRunning(ctx context.Context, id string) (*ec2types.Instance, error) {
	var inst *ec2types.Instance
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			out, err := e.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
			if err != nil {
				return maybeConvertError(err)
			}
			if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
				return errNotRunning
			}
			candidate := out.Reservations[0].Instances[0]
			if candidate.State == nil || candidate.State.Name != ec2types.InstanceStateNameRunning {
				return errNotRunning
			}
			inst = &candidate
			return nil
		},
		IsFatalError: func(err error) bool {
			return err != errNotRunning
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("waiting for instance %s (attempt %d)", id, attempt)
		},
		Delay:       runningPollDelay,
		MaxDuration: runningPollWindow,
		Clock:       e.clock,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "waiting for instance %s to run", id)
	}
	return inst, nil
}

// StopInstance is part of the environs.Environ interface.
func (e *environ) StopInstance(ctx context.Context, scope resource.Scope, name string) error {
	out, err := e.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: append(nameFilters(name), ec2types.Filter{
			Name:   strPtr("instance-state-name"),
			Values: []string{"pending", "running", "stopping", "stopped"},
		}),
	})
	if err != nil {
		return maybeConvertError(err)
	}
	var ids []string
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			ids = append(ids, awssdk.ToString(inst.InstanceId))
		}
	}
	if len(ids) == 0 {
		return errors.NotFoundf("instance %q", name)
	}
	_, err = e.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids})
	return errors.Annotatef(maybeConvertError(err), "terminating instance %q", name)
}

// DestroySubnet is part of the environs.Environ interface.
func (e *environ) DestroySubnet(ctx context.Context, scope resource.Scope, deploymentID string) error {
	name := resource.DeploymentSubnetName(scope, deploymentID)
	out, err := e.client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{Filters: nameFilters(name)})
	if err != nil {
		return maybeConvertError(err)
	}
	if len(out.Subnets) == 0 {
		return errors.NotFoundf("subnet %q", name)
	}
	_, err = e.client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: out.Subnets[0].SubnetId})
	return errors.Annotatef(maybeConvertError(err), "deleting subnet %q", name)
}
