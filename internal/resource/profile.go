// Package resource holds the per-kind behaviour of managed resources: which
// lifecycle states count as running, stopped or transitional, how size classes
// compare and how attributes are labelled in notifications. The reconciler looks
// a profile up once per run instead of branching on kind throughout.
package resource

import (
	"fmt"

	"github.com/yairfalse/ilmarinen/pkg/types"
)

// Profile is the kind-specific view of a resource
type Profile interface {
	Kind() types.Kind
	Noun() string
	Running(state string) bool
	Stopped(state string) bool
	Transitional(state string) bool
	InFlight(state string) bool
	CompareSize(current, target string) (int, bool)
	Label(attr types.Attribute) string
	NotificationSubject(id string) string
}

// For returns the profile of kind
func For(kind types.Kind) (Profile, bool) {
	switch kind {
	case types.KindCompute:
		return computeProfile{}, true
	case types.KindDatabase:
		return databaseProfile{}, true
	default:
		return nil, false
	}
}

// MustFor is For for kinds already validated by configuration
func MustFor(kind types.Kind) Profile {
	p, ok := For(kind)
	if !ok {
		panic(fmt.Sprintf("resource: no profile for kind %q", kind))
	}
	return p
}

type computeProfile struct{}

var computeTransitional = map[string]bool{
	"pending":       true,
	"stopping":      true,
	"shutting-down": true,
}

var computeLabels = map[types.Attribute]string{
	types.AttributeSizeClass:     "Instance type",
	types.AttributeStorage:       "Root volume size",
	types.AttributeNetworkGroups: "Security groups",
	types.AttributeImage:         "AMI",
}

func (computeProfile) Kind() types.Kind { return types.KindCompute }

func (computeProfile) Noun() string { return "instance" }

func (computeProfile) Running(state string) bool { return state == "running" }

func (computeProfile) Stopped(state string) bool { return state == "stopped" }

func (computeProfile) Transitional(state string) bool { return computeTransitional[state] }

func (computeProfile) InFlight(state string) bool { return computeTransitional[state] }

func (computeProfile) CompareSize(current, target string) (int, bool) {
	return CompareSizeClass(current, target)
}

func (computeProfile) Label(attr types.Attribute) string {
	if l, ok := computeLabels[attr]; ok {
		return l
	}
	return string(attr)
}

func (computeProfile) NotificationSubject(id string) string {
	return fmt.Sprintf("EC2 Self-Healing Notification - Instance %s", id)
}

type databaseProfile struct{}

// databaseInFlight lists the RDS statuses of an operation that will finish on
// its own. Terminal or failed statuses such as stopped, failed or
// storage-full are not in the set.
var databaseInFlight = map[string]bool{
	"backing-up":                      true,
	"configuring-enhanced-monitoring": true,
	"configuring-iam-database-auth":   true,
	"configuring-log-exports":         true,
	"converting-to-vpc":               true,
	"creating":                        true,
	"deleting":                        true,
	"maintenance":                     true,
	"modifying":                       true,
	"moving-to-vpc":                   true,
	"rebooting":                       true,
	"renaming":                        true,
	"resetting-master-credentials":    true,
	"starting":                        true,
	"stopping":                        true,
	"storage-optimization":            true,
	"upgrading":                       true,
}

var databaseLabels = map[types.Attribute]string{
	types.AttributeSizeClass:     "Instance class",
	types.AttributeStorage:       "Allocated storage",
	types.AttributeNetworkGroups: "VPC security groups",
	types.AttributeImage:         "Engine version",
}

func (databaseProfile) Kind() types.Kind { return types.KindDatabase }

func (databaseProfile) Noun() string { return "DB instance" }

func (databaseProfile) Running(state string) bool { return state == "available" }

func (databaseProfile) Stopped(state string) bool { return state == "stopped" }

// Any status other than available is treated as mid-transition for RDS.
func (databaseProfile) Transitional(state string) bool { return state != "available" }

func (databaseProfile) InFlight(state string) bool { return databaseInFlight[state] }

func (databaseProfile) CompareSize(current, target string) (int, bool) {
	return CompareSizeClass(current, target)
}

func (databaseProfile) Label(attr types.Attribute) string {
	if l, ok := databaseLabels[attr]; ok {
		return l
	}
	return string(attr)
}

func (databaseProfile) NotificationSubject(id string) string {
	return fmt.Sprintf("RDS Self-Healing Notification - Instance %s", id)
}
