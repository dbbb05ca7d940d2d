// Package drift compares a resource snapshot against its declared baseline.
package drift

import (
	"strconv"
	"strings"

	"github.com/yairfalse/ilmarinen/internal/resource"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// attributeCheck compares one attribute; ok is false when there is no drift
// or the baseline does not declare the attribute.
type attributeCheck func(snap *types.ResourceSnapshot, baseline types.Baseline) (finding types.DriftFinding, ok bool)

// Detector enumerates drift findings in the fixed attribute order
type Detector struct {
	checks map[types.Attribute]attributeCheck
}

// New creates a detector with the standard attribute checks
func New() *Detector {
	return &Detector{
		checks: map[types.Attribute]attributeCheck{
			types.AttributeSizeClass:     checkSizeClass,
			types.AttributeStorage:       checkStorage,
			types.AttributeNetworkGroups: checkNetworkGroups,
			types.AttributeImage:         checkImage,
		},
	}
}

// DetectDrift returns one finding per drifted attribute, ordered size class,
// storage, network groups, image. An empty result means no drift.
func (d *Detector) DetectDrift(snap *types.ResourceSnapshot, baseline types.Baseline) []types.DriftFinding {
	var findings []types.DriftFinding
	profile, hasProfile := resource.For(snap.Kind)

	for _, attr := range types.DriftAttributes {
		check, ok := d.checks[attr]
		if !ok {
			continue
		}
		f, drifted := check(snap, baseline)
		if !drifted {
			continue
		}
		f.Attribute = attr
		if hasProfile {
			f.Label = profile.Label(attr)
		}
		findings = append(findings, f)
	}
	return findings
}

func checkSizeClass(snap *types.ResourceSnapshot, baseline types.Baseline) (types.DriftFinding, bool) {
	if baseline.SizeClass == "" || snap.SizeClass == baseline.SizeClass {
		return types.DriftFinding{}, false
	}
	return types.DriftFinding{
		Observed: snap.SizeClass,
		Baseline: baseline.SizeClass,
		Feasible: true,
	}, true
}

// Storage only ever grows back to the baseline; a volume larger than
// declared is reported but left alone. An observed size of zero means the
// size could not be read and is not treated as drift.
func checkStorage(snap *types.ResourceSnapshot, baseline types.Baseline) (types.DriftFinding, bool) {
	if baseline.StorageGB <= 0 || snap.StorageGB <= 0 || snap.StorageGB == baseline.StorageGB {
		return types.DriftFinding{}, false
	}
	return types.DriftFinding{
		Observed: strconv.Itoa(snap.StorageGB),
		Baseline: strconv.Itoa(baseline.StorageGB),
		Feasible: snap.StorageGB < baseline.StorageGB,
	}, true
}

func checkNetworkGroups(snap *types.ResourceSnapshot, baseline types.Baseline) (types.DriftFinding, bool) {
	if len(baseline.NetworkGroups) == 0 {
		return types.DriftFinding{}, false
	}
	observed := types.SortedSet(snap.NetworkGroups)
	declared := types.SortedSet(baseline.NetworkGroups)
	if equalSets(observed, declared) {
		return types.DriftFinding{}, false
	}
	return types.DriftFinding{
		Observed: strings.Join(observed, ","),
		Baseline: strings.Join(declared, ","),
		Feasible: true,
	}, true
}

func checkImage(snap *types.ResourceSnapshot, baseline types.Baseline) (types.DriftFinding, bool) {
	if baseline.Image == "" || snap.Image == baseline.Image {
		return types.DriftFinding{}, false
	}
	return types.DriftFinding{
		Observed: snap.Image,
		Baseline: baseline.Image,
		Feasible: false,
	}, true
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Feasible returns the findings that can be remediated automatically
func Feasible(findings []types.DriftFinding) []types.DriftFinding {
	var out []types.DriftFinding
	for _, f := range findings {
		if f.Feasible {
			out = append(out, f)
		}
	}
	return out
}

// Infeasible returns the findings that need an operator
func Infeasible(findings []types.DriftFinding) []types.DriftFinding {
	var out []types.DriftFinding
	for _, f := range findings {
		if !f.Feasible {
			out = append(out, f)
		}
	}
	return out
}

// Report renders findings one per line for notifications
func Report(findings []types.DriftFinding) string {
	lines := make([]string, 0, len(findings))
	for _, f := range findings {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n")
}
