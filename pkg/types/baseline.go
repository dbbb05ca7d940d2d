package types

// Baseline is the declared configuration a resource is healed back to.
// Empty fields are not checked for drift.
type Baseline struct {
	SizeClass     string   `json:"size_class,omitempty" yaml:"size_class,omitempty"`
	Image         string   `json:"image,omitempty" yaml:"image,omitempty"`
	StorageGB     int      `json:"storage_gb,omitempty" yaml:"storage_gb,omitempty"`
	NetworkGroups []string `json:"network_groups,omitempty" yaml:"network_groups,omitempty"`
}

// IsEmpty returns true if no attribute is declared
func (b Baseline) IsEmpty() bool {
	return b.SizeClass == "" && b.Image == "" && b.StorageGB == 0 && len(b.NetworkGroups) == 0
}
