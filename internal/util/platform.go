package util

import (
	"os"
	"runtime"
	"strings"
	"unicode"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo describes the machine a player runs on. It is attached to
// telemetry so battles from the same LAN can be told apart.
type HostInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Platform     string `json:"platform"`
	Architecture string `json:"architecture"`
	CPUs         int    `json:"cpus"`
	TotalMemory  uint64 `json:"total_memory_mb"`
	Uptime       uint64 `json:"uptime_sec"`
}

// GetHostInfo gathers host information, leaving fields it cannot read empty.
func GetHostInfo() HostInfo {
	info := HostInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUs:         runtime.NumCPU(),
	}

	if hostInfo, err := host.Info(); err == nil {
		info.Hostname = hostInfo.Hostname
		info.Platform = strings.TrimSpace(hostInfo.Platform + " " + hostInfo.PlatformVersion)
		info.Uptime = hostInfo.Uptime
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / (1024 * 1024)
	}

	return info
}

// DefaultPlayerName derives a player name from the host name.
func DefaultPlayerName() string {
	return PlayerNameFromHost(GetHostInfo().Hostname)
}

// PlayerNameFromHost keeps the first label of hostname, stripped to
// letters, digits, '-' and '_'.
func PlayerNameFromHost(hostname string) string {
	label, _, _ := strings.Cut(hostname, ".")
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, label)
	if name == "" {
		return "Trainer"
	}
	return name
}

// FileExists checks if a file or directory exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
