package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

func TestCompareSizeClass_Ordering(t *testing.T) {
	ascending := []string{"t3.micro", "t3.large", "m5.large", "r5.large", "x1.large"}
	for i := 0; i < len(ascending)-1; i++ {
		a, b := ascending[i], ascending[i+1]
		c, ok := CompareSizeClass(a, b)
		require.True(t, ok, "%s vs %s", a, b)
		assert.Equal(t, -1, c, "%s should be smaller than %s", a, b)

		c, ok = CompareSizeClass(b, a)
		require.True(t, ok)
		assert.Equal(t, 1, c)
	}

	c, ok := CompareSizeClass("db.r5.2xlarge", "db.r5.4xlarge")
	require.True(t, ok)
	assert.Equal(t, -1, c)
}

func TestCompareSizeClass(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		want   int
		wantOK bool
	}{
		{"equal", "t3.medium", "t3.medium", 0, true},
		{"sizes within family", "t3.nano", "t3.small", -1, true},
		{"xlarge above large", "m5.large", "m5.xlarge", -1, true},
		{"xlarge below 2xlarge", "m5.xlarge", "m5.2xlarge", -1, true},
		{"16xlarge above 8xlarge", "r5.16xlarge", "r5.8xlarge", 1, true},
		{"family beats size", "t3.2xlarge", "m5.large", -1, true},
		{"db prefix", "db.t3.micro", "db.m5.large", -1, true},
		{"unknown family falls back to size", "c5.large", "c5.xlarge", -1, true},
		{"unknown family vs known compares size", "c5.xlarge", "m5.large", 1, true},
		{"unknown size", "m5.metal", "m5.large", 0, false},
		{"malformed", "large", "m5.large", 0, false},
		{"empty", "", "m5.large", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CompareSizeClass(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseSizeClass(t *testing.T) {
	sc, ok := ParseSizeClass("db.R5.2XLarge")
	require.True(t, ok)
	assert.Equal(t, "r5", sc.Family)
	assert.Equal(t, "2xlarge", sc.Size)

	_, ok = ParseSizeClass("db.r5")
	assert.False(t, ok)
}

func TestProfiles(t *testing.T) {
	compute := MustFor(types.KindCompute)
	assert.Equal(t, types.KindCompute, compute.Kind())
	assert.True(t, compute.Running("running"))
	assert.True(t, compute.Stopped("stopped"))
	for _, s := range []string{"pending", "stopping", "shutting-down"} {
		assert.True(t, compute.Transitional(s), s)
	}
	for _, s := range []string{"running", "stopped", "terminated"} {
		assert.False(t, compute.Transitional(s), s)
	}
	assert.Equal(t, "AMI", compute.Label(types.AttributeImage))
	assert.Contains(t, compute.NotificationSubject("i-1"), "EC2 Self-Healing")

	database := MustFor(types.KindDatabase)
	assert.True(t, database.Running("available"))
	assert.False(t, database.Transitional("available"))
	for _, s := range []string{"modifying", "backing-up", "stopped", "storage-full"} {
		assert.True(t, database.Transitional(s), s)
	}
	for _, s := range []string{"modifying", "backing-up", "rebooting", "starting", "stopping"} {
		assert.True(t, database.InFlight(s), s)
	}
	for _, s := range []string{"available", "stopped", "failed", "storage-full", "incompatible-parameters"} {
		assert.False(t, database.InFlight(s), s)
	}
	assert.True(t, compute.InFlight("pending"))
	assert.False(t, compute.InFlight("stopped"))
	assert.Equal(t, "Engine version", database.Label(types.AttributeImage))
	assert.Equal(t, "DB instance", database.Noun())

	_, ok := For("queue")
	assert.False(t, ok)
	assert.Panics(t, func() { MustFor("queue") })
}
