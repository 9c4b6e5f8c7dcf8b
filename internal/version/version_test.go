package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetInfoReflectsPackageVars(t *testing.T) {
	prevVersion, prevCommit := Version, GitCommit
	defer func() { Version, GitCommit = prevVersion, prevCommit }()

	Version = "v1.2.3"
	GitCommit = "abc1234"

	info := GetInfo()
	require.Equal(t, "streamgate", info.Service)
	require.Equal(t, "v1.2.3", info.Version)
	require.Equal(t, "abc1234", info.GitCommit)
}
