package versions

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	t.Parallel()

	info := GetVersionInfo()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestVersionInfoWithLdflagsValues(t *testing.T) {
	t.Parallel()

	info := getVersionInfoWithValues("1.2.3", "abcdef123456", "2025-06-01T08:00:00Z")
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abcdef123456", info.Commit)
	assert.Equal(t, "2025-06-01 08:00:00 UTC", info.BuildDate)
}

func TestVersionInfoDevBuildUsesCommit(t *testing.T) {
	t.Parallel()

	info := getVersionInfoWithValues("dev", "abcdef123456deadbeef", unknownStr)
	assert.Equal(t, "build-abcdef12", info.Version)
}
