package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stubBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	orig := readBuildInfo
	t.Cleanup(func() { readBuildInfo = orig })
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
}

func setVars(t *testing.T, v, c, d string) {
	t.Helper()
	ov, oc, od := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = ov, oc, od })
	Version, Commit, Date = v, c, d
}

func TestLdflagsWin(t *testing.T) {
	setVars(t, "1.2.3", "abc1234567890", "2026-01-15")
	stubBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v9.9.9"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "fffffff"}},
	})

	b := Current()
	assert.Equal(t, "1.2.3", b.Version)
	assert.Equal(t, "abc1234567890", b.Commit)

	info := b.String()
	assert.Contains(t, info, "commit abc1234,")
	assert.Contains(t, info, "2026-01-15")
	assert.Contains(t, info, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestFallsBackToBuildInfo(t *testing.T) {
	setVars(t, "dev", "unknown", "unknown")
	stubBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-05-02T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	b := Current()
	assert.Equal(t, Build{
		Version: "v0.4.0",
		Commit:  "0123456789abcdef",
		Date:    "2026-05-02T10:00:00Z",
		Dirty:   true,
		Go:      runtime.Version(),
	}, b)
	assert.Contains(t, b.String(), "commit 0123456-dirty")
}

func TestDevelModuleVersionIgnored(t *testing.T) {
	setVars(t, "dev", "unknown", "unknown")
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	assert.Equal(t, "dev", Current().Version)
}

func TestNoBuildInfo(t *testing.T) {
	setVars(t, "dev", "unknown", "unknown")
	stubBuildInfo(t, nil)
	assert.Contains(t, Info(), "chatrelay dev (commit unknown, built unknown")
}

func TestShort(t *testing.T) {
	for in, want := range map[string]string{
		"":           "",
		"abc":        "abc",
		"1234567":    "1234567",
		"12345678":   "1234567",
		"abcdefghij": "abcdefg",
	} {
		assert.Equal(t, want, short(in), in)
	}
}
