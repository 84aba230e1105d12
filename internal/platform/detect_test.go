package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultModelDirForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "/tmp/xdg-data")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-data/voxapi/models", dir)
}

func TestDefaultModelDirForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.local/share/voxapi/models", dir)
}

func TestDefaultModelDirForMacOS(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("darwin", "/Users/dev", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/voxapi/models", dir)
}

func TestDefaultModelDirForUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := DefaultModelDirFor("plan9", "/usr/dev", "")
	require.Error(t, err)

	_, err = DefaultModelDirFor("linux", "", "")
	require.Error(t, err)
}

func TestResolveModelDirOverride(t *testing.T) {
	t.Parallel()

	dir, err := ResolveModelDir("/srv/models/")
	require.NoError(t, err)
	require.Equal(t, "/srv/models", dir)
}

func TestResolveScratchDir(t *testing.T) {
	t.Parallel()

	dir, err := ResolveScratchDir("")
	require.NoError(t, err)
	require.Empty(t, dir)

	want := filepath.Join(t.TempDir(), "scratch")
	dir, err = ResolveScratchDir(want)
	require.NoError(t, err)
	require.Equal(t, want, dir)

	info, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestRuntimeTarget(t *testing.T) {
	t.Parallel()

	require.Equal(t, "linux_arm64", Runtime{OS: "linux", Arch: NormalizeArch("aarch64")}.Target())
}
