package version

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, version, commit, built string) {
	t.Helper()
	oldVersion, oldCommit, oldBuilt := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, built
	t.Cleanup(func() {
		Version, GitCommit, BuildTime = oldVersion, oldCommit, oldBuilt
	})
}

func TestReleaseBuild(t *testing.T) {
	withBuildVars(t, "v1.2.3", "0123456789abcdef", "2026-01-02T03:04:05Z")

	assert.Equal(t, "v1.2.3", GetVersion())
	assert.Equal(t, "0123456789abcdef", GetGitCommit())
	assert.Equal(t, "v1.2.3 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())

	info := GetBuildInfo()
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Contains(t, info.String(), "Version: v1.2.3")
	assert.Contains(t, info.String(), "Built: 2026-01-02T03:04:05Z")
}

func TestDevBuild(t *testing.T) {
	withBuildVars(t, "dev", "unknown", "unknown")

	assert.NotEmpty(t, GetVersion())
	assert.False(t, IsRelease())
	assert.True(t, GetBuildInfo().BuildTime.IsZero())
}

func TestParseBuildTime(t *testing.T) {
	testCases := []struct {
		input    string
		expected time.Time
	}{
		{"2026-01-02T03:04:05Z", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2026-01-02T03:04:05", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2026-01-02 03:04:05", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"yesterday", time.Time{}},
		{"unknown", time.Time{}},
		{"", time.Time{}},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.True(t, tc.expected.Equal(parseBuildTime(tc.input)))
		})
	}
}
