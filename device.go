package ryazhenka

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Device Identity
// ============================================================================

const deviceIDPrefix = "RYA"

// machineIDFiles are the stable host tokens consulted in order.
var machineIDFiles = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// GenerateDeviceID derives an identifier for this installation. It never
// fails: with a stable host token the id is prefix + token + coarse
// timestamp salt (the salt only disambiguates reinstalls), otherwise the id
// is timestamp-derived with a random component.
func GenerateDeviceID() string {
	salt := fmt.Sprintf("%08X", time.Now().Unix())
	if token := hardwareToken(); token != "" {
		return fmt.Sprintf("%s-%s-%s", deviceIDPrefix, token, salt)
	}
	// No stable token: a bare timestamp collides across devices, so fold in
	// a random suffix.
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-UNKNOWN-%s-%s", deviceIDPrefix, salt, short)
}

// LoadOrCreateDeviceID returns the cached device id from dir, generating and
// caching a new one on first use. Persisting the id pins the timestamp salt,
// so two installs in the same second can no longer produce the same id on a
// later run. Cache failures degrade to an unpersisted id; the function never
// returns an empty string.
func LoadOrCreateDeviceID(dir string) string {
	path := filepath.Join(dir, "device_id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	id := GenerateDeviceID()
	if err := os.MkdirAll(dir, 0o700); err == nil {
		_ = os.WriteFile(path, []byte(id+"\n"), 0o600)
	}
	return id
}

// hardwareToken reads the first available stable host token. Returns "" when
// none is obtainable.
func hardwareToken() string {
	for _, path := range machineIDFiles {
		if data, err := os.ReadFile(path); err == nil {
			if token := strings.TrimSpace(string(data)); token != "" {
				return token
			}
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" && host != "localhost" {
		return host
	}
	return ""
}
