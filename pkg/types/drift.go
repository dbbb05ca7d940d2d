package types

import "fmt"

// Attribute names a drift-checked configuration attribute
type Attribute string

const (
	// AttributeSizeClass is the instance type or DB instance class
	AttributeSizeClass Attribute = "size_class"
	// AttributeStorage is the allocated storage in GiB
	AttributeStorage Attribute = "storage"
	// AttributeNetworkGroups is the security group set
	AttributeNetworkGroups Attribute = "network_groups"
	// AttributeImage is the AMI or database engine version
	AttributeImage Attribute = "image"
)

// DriftAttributes is the fixed order drift is checked and remediated in
var DriftAttributes = []Attribute{
	AttributeSizeClass,
	AttributeStorage,
	AttributeNetworkGroups,
	AttributeImage,
}

// String returns the string representation of Attribute
func (a Attribute) String() string {
	return string(a)
}

// DriftFinding is one mismatch between a snapshot and its baseline
type DriftFinding struct {
	Attribute Attribute `json:"attribute"`
	Label     string    `json:"label"`
	Observed  string    `json:"observed"`
	Baseline  string    `json:"baseline"`
	// Feasible is false for drift that is detected but never fixed automatically
	Feasible bool `json:"feasible"`
}

// String renders the finding the way it appears in notifications
func (f DriftFinding) String() string {
	label := f.Label
	if label == "" {
		label = string(f.Attribute)
	}
	return fmt.Sprintf("%s drift detected: current=%s, original=%s", label, f.Observed, f.Baseline)
}

// FindingFor returns the finding for attr, if any
func FindingFor(findings []DriftFinding, attr Attribute) (DriftFinding, bool) {
	for _, f := range findings {
		if f.Attribute == attr {
			return f, true
		}
	}
	return DriftFinding{}, false
}
