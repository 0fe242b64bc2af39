package cnwlicense

import (
	"crypto/sha256"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
)

// MachineIDEnv overrides MachineID when set.
const MachineIDEnv = "CNW_MACHINE_ID"

// MachineID returns a stable identifier for this machine, suitable for the
// machine_id field of an activation request.
//
// The value is a SHA-256 hex digest of the OS machine-id (Linux) when present,
// otherwise of the hostname, sorted MAC addresses, OS and architecture.
// Containers should set CNW_MACHINE_ID, since hostnames and MACs change
// between restarts.
func MachineID() (string, error) {
	if id := os.Getenv(MachineIDEnv); id != "" {
		return id, nil
	}

	var parts []string
	if raw, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			parts = append(parts, id)
		}
	}

	if len(parts) == 0 {
		hostname, err := os.Hostname()
		if err != nil {
			return "", fmt.Errorf("get hostname: %w", err)
		}
		parts = append(parts, hostname)
		if macs, err := macAddresses(); err == nil {
			parts = append(parts, macs...)
		}
	}
	parts = append(parts, runtime.GOOS, runtime.GOARCH)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", sum), nil
}

// macAddresses returns sorted, non-loopback hardware addresses.
func macAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return macs, nil
}
