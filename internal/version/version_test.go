package version

import (
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
	t.Cleanup(func() { readBuildInfo = orig })
}

func withVars(t *testing.T, v, commit string) {
	t.Helper()
	origV, origC := Version, GitCommit
	Version, GitCommit = v, commit
	t.Cleanup(func() { Version, GitCommit = origV, origC })
}

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		info    *debug.BuildInfo
		want    string
	}{
		{
			name:    "ldflags wins",
			version: "1.4.0",
			want:    "1.4.0",
		},
		{
			name:    "whitespace is collapsed",
			version: "1.4.0 rc 1",
			want:    "1.4.0-rc-1",
		},
		{
			name:    "module version",
			version: "dev",
			info:    &debug.BuildInfo{Main: debug.Module{Version: "v0.3.1"}},
			want:    "v0.3.1",
		},
		{
			name:    "vcs revision",
			version: "dev",
			info: &debug.BuildInfo{
				Main:     debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}},
			},
			want: "dev-0123456",
		},
		{
			name:    "nothing known",
			version: "dev",
			want:    "dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVars(t, tt.version, "unknown")
			withBuildInfo(t, tt.info)
			assert.Equal(t, tt.want, GetVersion())
			assert.NotContains(t, GetVersion(), " ")
		})
	}
}

func TestGetShortVersion(t *testing.T) {
	withBuildInfo(t, nil)

	withVars(t, "1.0.0", "abcdef123456")
	assert.Equal(t, "1.0.0 (abcdef1)", GetShortVersion())

	withVars(t, "1.0.0", "unknown")
	assert.Equal(t, "1.0.0", GetShortVersion())
}

func TestIsReleaseAndDirty(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		Settings: []debug.BuildSetting{{Key: "vcs.modified", Value: "true"}},
	})

	withVars(t, "2.0.0", "unknown")
	assert.True(t, IsRelease())
	assert.True(t, IsDirty())

	withVars(t, "dev", "unknown")
	assert.False(t, IsRelease())
}

func TestParseBuildTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.True(t, want.Equal(parseBuildTime("2024-03-01T12:30:00Z")))
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("").IsZero())
}

func TestGetBuildInfo(t *testing.T) {
	withVars(t, "1.2.3", "deadbeefcafe")
	withBuildInfo(t, nil)

	info := GetBuildInfo()
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "deadbeefcafe", info.GitCommit)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
	assert.False(t, info.Dirty)
}
