package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFullVersion_UnparsableBuildTime_PrintedVerbatim(t *testing.T) {
	old := BuildTime
	BuildTime = "yesterday"
	defer func() { BuildTime = old }()

	out := GetFullVersion()

	assert.Contains(t, out, "tonrelay "+Version)
	assert.Contains(t, out, "构建时间: yesterday")
}

func TestGetBuildInfo_PlatformFromRuntime(t *testing.T) {
	info := GetBuildInfo()
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
