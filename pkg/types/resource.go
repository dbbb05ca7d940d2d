package types

import (
	"fmt"
	"strings"
)

// Kind is the closed set of resource kinds the healer manages
type Kind string

const (
	// KindCompute is an EC2 instance
	KindCompute Kind = "compute"
	// KindDatabase is an RDS DB instance
	KindDatabase Kind = "database"
)

// IsValid checks if the Kind is one of the known kinds
func (k Kind) IsValid() bool {
	switch k {
	case KindCompute, KindDatabase:
		return true
	default:
		return false
	}
}

// String returns the string representation of Kind
func (k Kind) String() string {
	return string(k)
}

// ParseKind accepts the canonical kind names and their AWS service aliases
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compute", "ec2", "instance":
		return KindCompute, nil
	case "database", "rds", "db":
		return KindDatabase, nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", s)
	}
}

// ResourceRef identifies a resource for control-plane calls
type ResourceRef struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	// ARN is required for tagging RDS instances
	ARN string `json:"arn,omitempty"`
}

func (r ResourceRef) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.ID)
}
