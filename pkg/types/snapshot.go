package types

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ResourceSnapshot is a point-in-time view of one managed resource.
// A snapshot is never mutated after the fetcher builds it; a new run fetches a new one.
type ResourceSnapshot struct {
	ID            string            `json:"id"`
	ARN           string            `json:"arn,omitempty"`
	Kind          Kind              `json:"kind"`
	State         string            `json:"state"`
	SizeClass     string            `json:"size_class"`
	Image         string            `json:"image"`
	StorageGB     int               `json:"storage_gb"`
	NetworkGroups []string          `json:"network_groups"`
	Tags          map[string]string `json:"tags"`
	FetchedAt     time.Time         `json:"fetched_at"`
}

// Validate checks if the snapshot has the fields the reconciler relies on
func (s *ResourceSnapshot) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("snapshot resource ID is required")
	}
	if !s.Kind.IsValid() {
		return errors.New("snapshot resource kind is invalid")
	}
	if strings.TrimSpace(s.State) == "" {
		return errors.New("snapshot lifecycle state is required")
	}
	return nil
}

// Ref returns the reference used for control-plane calls
func (s *ResourceSnapshot) Ref() ResourceRef {
	return ResourceRef{ID: s.ID, Kind: s.Kind, ARN: s.ARN}
}

// GetTag returns the value of a specific tag, or empty string if not found
func (s *ResourceSnapshot) GetTag(key string) string {
	if s.Tags == nil {
		return ""
	}
	return s.Tags[key]
}

// HasTag reports whether the tag key is present
func (s *ResourceSnapshot) HasTag(key string) bool {
	if s.Tags == nil {
		return false
	}
	_, ok := s.Tags[key]
	return ok
}

// SortedNetworkGroups returns a sorted copy of the network groups
func (s *ResourceSnapshot) SortedNetworkGroups() []string {
	return SortedSet(s.NetworkGroups)
}

// SortedSet returns the sorted, de-duplicated members of values
func SortedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
