package boot

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNarrowAndRestorePath(t *testing.T) {
	t.Setenv("PATH", "/home/user/bin:/usr/bin")
	t.Setenv(OldPathEnv, "placeholder")
	require.NoError(t, os.Unsetenv(OldPathEnv))

	require.NoError(t, NarrowPath())
	assert.Equal(t, strings.Join(ToolPath, ":"), os.Getenv("PATH"))
	assert.Equal(t, "/home/user/bin:/usr/bin", os.Getenv(OldPathEnv))

	require.NoError(t, NarrowPath())
	assert.Equal(t, "/home/user/bin:/usr/bin", os.Getenv(OldPathEnv), "second narrow keeps the original")

	require.NoError(t, RestorePath())
	assert.Equal(t, "/home/user/bin:/usr/bin", os.Getenv("PATH"))
	_, saved := os.LookupEnv(OldPathEnv)
	assert.False(t, saved)
}

func TestRestorePathWithoutNarrow(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")
	t.Setenv(OldPathEnv, "placeholder")
	require.NoError(t, os.Unsetenv(OldPathEnv))

	require.NoError(t, RestorePath())
	assert.Equal(t, "/usr/bin", os.Getenv("PATH"))
}
