package utils

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// machineIDPaths are checked in order for a stable OS-provided identifier.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// MachineID returns a stable identifier for this machine. The OS machine id
// is preferred; when unavailable, a random id is generated once and persisted
// at fallbackPath so the agent keeps the same identity across restarts.
func MachineID(fallbackPath string) (string, error) {
	for _, path := range machineIDPaths {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id, nil
			}
		}
	}

	if data, err := os.ReadFile(fallbackPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.WriteFile(fallbackPath, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

// HostName returns the machine's hostname, or a fixed placeholder when the
// OS refuses to say.
func HostName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown-pc"
	}
	return name
}
