package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineID_FallbackIsStable(t *testing.T) {
	// Point the OS paths somewhere empty so the persisted fallback is used.
	orig := machineIDPaths
	machineIDPaths = []string{filepath.Join(t.TempDir(), "absent")}
	defer func() { machineIDPaths = orig }()

	fallback := filepath.Join(t.TempDir(), "machine-id")

	first, err := MachineID(fallback)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := MachineID(fallback)
	require.NoError(t, err)
	assert.Equal(t, first, second, "persisted id must survive restarts")

	data, err := os.ReadFile(fallback)
	require.NoError(t, err)
	assert.Contains(t, string(data), first)
}

func TestMachineID_PrefersOSID(t *testing.T) {
	osIDFile := filepath.Join(t.TempDir(), "machine-id")
	require.NoError(t, os.WriteFile(osIDFile, []byte("abc123\n"), 0o644))

	orig := machineIDPaths
	machineIDPaths = []string{osIDFile}
	defer func() { machineIDPaths = orig }()

	id, err := MachineID(filepath.Join(t.TempDir(), "fallback"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
}

func TestHostName(t *testing.T) {
	assert.NotEmpty(t, HostName())
}
