// Package aws implements the control plane against EC2 and RDS with the AWS SDK v2.
package aws

import (
	"fmt"

	"github.com/yairfalse/ilmarinen/internal/controlplane"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// NewControlPlane returns the control plane for resources of kind
func NewControlPlane(clients *Clients, kind types.Kind) (controlplane.ControlPlane, error) {
	switch kind {
	case types.KindCompute:
		if clients.EC2 == nil {
			return nil, fmt.Errorf("EC2 client is not configured")
		}
		return NewEC2ControlPlane(clients.EC2), nil
	case types.KindDatabase:
		if clients.RDS == nil {
			return nil, fmt.Errorf("RDS client is not configured")
		}
		return NewRDSControlPlane(clients.RDS), nil
	default:
		return nil, fmt.Errorf("no control plane for resource kind %q", kind)
	}
}
