// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package compute models the server-group side of the cloud: scaling
// groups, their membership, and the security-group driven tag
// arithmetic used when cloning group configuration.
package compute

import (
	"context"

	"github.com/juju/collections/set"
)

// ServerGroup is a named autoscaling group of server instances.
type ServerGroup struct {
	Name        string
	Region      string
	Status      string
	InstanceIDs []string
}

// Deleting reports whether the group is on its way out. A deleting
// group is treated the same as an absent one by callers deciding
// whether an instance is still managed.
func (g *ServerGroup) Deleting() bool {
	return g.Status == "DELETING" || g.Status == "DELETED"
}

// Contains reports whether the instance is a member of the group.
func (g *ServerGroup) Contains(instanceID string) bool {
	return set.NewStrings(g.InstanceIDs...).Contains(instanceID)
}

// GroupClient resolves server groups at the cloud provider.
// Implementations return errors satisfying errors.NotFound when the
// group does not exist.
type GroupClient interface {
	ServerGroup(ctx context.Context, region, name string) (*ServerGroup, error)
}

// SecurityGroup is a firewall group that targets instances carrying
// any of its target tags.
type SecurityGroup struct {
	ID         string
	Name       string
	TargetTags []string
}

// SubsetTags computes the tag set for a resource cloned from one
// carrying original, when only the security groups named in selected
// should apply to the clone. A tag survives if no known security group
// targets it (it is not firewall-related at all), or if a selected
// group targets it. Tags targeted exclusively by unselected groups are
// dropped. Order and duplicates of the original are preserved.
func SubsetTags(original []string, groups []SecurityGroup, selected []string) []string {
	selectedIDs := set.NewStrings(selected...)
	targeted := set.NewStrings()
	wanted := set.NewStrings()
	for _, g := range groups {
		for _, tag := range g.TargetTags {
			targeted.Add(tag)
			if selectedIDs.Contains(g.ID) || selectedIDs.Contains(g.Name) {
				wanted.Add(tag)
			}
		}
	}

	result := make([]string, 0, len(original))
	for _, tag := range original {
		if !targeted.Contains(tag) || wanted.Contains(tag) {
			result = append(result, tag)
		}
	}
	return result
}
