// Package brand holds the product identity and the default filesystem
// locations derived from it.
//
// The identity is embedded from brand.json at compile time so packaging
// scripts can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Vendor           string `json:"vendor"`
	Website          string `json:"website"`
	Repository       string `json:"repository"`
	Description      string `json:"description"`
	Tagline          string `json:"tagline"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultLogDir    string `json:"defaultLogDir"`
	DefaultRunDir    string `json:"defaultRunDir"`
	SocketName       string `json:"socketName"`
	BinaryName       string `json:"binaryName"`
	ServiceName      string `json:"serviceName"`
	ConfigFileName   string `json:"configFileName"`
	Copyright        string `json:"copyright"`
	License          string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultLogDir = b.DefaultLogDir
	DefaultRunDir = b.DefaultRunDir
	SocketName = b.SocketName
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
}

var (
	Name             string
	LowerName        string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	DefaultRunDir    string
	SocketName       string
	BinaryName       string
	ConfigFileName   string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// dirFromEnv resolves a directory with the priority
// <PREFIX>_<KEY>_DIR > <PREFIX>_PREFIX/<sub> > def.
func dirFromEnv(key, sub, def string) string {
	if dir := os.Getenv(ConfigEnvPrefix + "_" + key + "_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, sub)
	}
	return def
}

// GetStateDir returns the state directory (sqlite store, leases).
func GetStateDir() string {
	return dirFromEnv("STATE", "state", DefaultStateDir)
}

// GetLogDir returns the log directory.
func GetLogDir() string {
	return dirFromEnv("LOG", "log", DefaultLogDir)
}

// GetConfigDir returns the config directory.
func GetConfigDir() string {
	return dirFromEnv("CONFIG", "config", DefaultConfigDir)
}

// GetRunDir returns the runtime directory for sockets, PID files and the
// generated hostapd/dnsmasq/wpa_supplicant configs.
func GetRunDir() string {
	return dirFromEnv("RUN", "run", DefaultRunDir)
}

// GetConfigPath returns the default config file path.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// GetSocketPath returns the full path to the control plane socket,
// e.g. /var/run/repeater/repeater-ctl.sock.
func GetSocketPath() string {
	return filepath.Join(GetRunDir(), LowerName+"-"+SocketName)
}

// GetPIDPath returns the daemon PID file path.
func GetPIDPath() string {
	return filepath.Join(GetRunDir(), LowerName+".pid")
}
