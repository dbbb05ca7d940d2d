package resource

import (
	"cmp"
	"strconv"
	"strings"
)

// familyRank orders instance families by their first letter
var familyRank = map[byte]int{
	't': 1,
	'm': 2,
	'r': 3,
	'x': 4,
}

var sizeRank = map[string]int{
	"nano":   1,
	"micro":  2,
	"small":  3,
	"medium": 4,
	"large":  5,
}

// SizeClass is a parsed instance type such as "m5.large" or "db.r5.2xlarge"
type SizeClass struct {
	Family string
	Size   string
}

// ParseSizeClass splits an instance type into family and size.
// The RDS "db." prefix is accepted and ignored.
func ParseSizeClass(s string) (SizeClass, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "db.")

	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return SizeClass{}, false
	}
	return SizeClass{Family: parts[0], Size: parts[1]}, true
}

// sizeValue ranks a size; Nxlarge sorts above large, ascending by N
func sizeValue(size string) (int, bool) {
	if v, ok := sizeRank[size]; ok {
		return v, true
	}
	if !strings.HasSuffix(size, "xlarge") {
		return 0, false
	}
	prefix := strings.TrimSuffix(size, "xlarge")
	if prefix == "" {
		return sizeRank["large"] + 1, true
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 1 {
		return 0, false
	}
	return sizeRank["large"] + n, true
}

// CompareSizeClass orders two instance types by family rank (t < m < r < x)
// and then by size. ok is false when the pair cannot be ordered.
func CompareSizeClass(a, b string) (int, bool) {
	pa, okA := ParseSizeClass(a)
	pb, okB := ParseSizeClass(b)
	if !okA || !okB {
		return 0, false
	}

	fa, knownA := familyRank[pa.Family[0]]
	fb, knownB := familyRank[pb.Family[0]]
	if knownA && knownB && fa != fb {
		return cmp.Compare(fa, fb), true
	}

	sa, okA := sizeValue(pa.Size)
	sb, okB := sizeValue(pb.Size)
	if !okA || !okB {
		return 0, false
	}
	return cmp.Compare(sa, sb), true
}

