// Package bootstrap reads the detected system profile persisted by the
// external hardware probe. taskclaw never probes hardware itself; it
// only consumes detected.json when resolving model profiles.
package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/clawinfra/taskclaw/internal/features"
)

// SystemProfile is the recommended configuration derived from detected
// hardware, as written by the probe.
type SystemProfile struct {
	Tier                features.Tier `json:"tier"`
	RoutingModel        string        `json:"routing_model"`
	FastModel           string        `json:"fast_model"`
	QualityModel        string        `json:"quality_model"`
	MaxConcurrentAgents int           `json:"max_concurrent_agents"`
	RAMTotalMB          int           `json:"ram_total_mb"`
	RAMAvailableMB      int           `json:"ram_available_mb"`
	TotalVRAMMB         int           `json:"total_vram_mb"`
	CPUCores            int           `json:"cpu_cores"`
	CPUArch             string        `json:"cpu_arch"`
	GPUCount            int           `json:"gpu_count"`
}

// DetectedPath returns the OS-appropriate location of detected.json.
func DetectedPath() string {
	var base string
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, "Library", "Application Support", "taskclaw")
	case "windows":
		if d := os.Getenv("LOCALAPPDATA"); d != "" {
			base = filepath.Join(d, "taskclaw")
		}
	default:
		if d := os.Getenv("XDG_DATA_HOME"); d != "" {
			base = filepath.Join(d, "taskclaw")
		}
	}
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".local", "share", "taskclaw")
	}
	return filepath.Join(base, "detected.json")
}

// LoadDetected reads the profile from path (DetectedPath() when empty).
// A missing or corrupt file yields (nil, nil): the caller falls back to
// configured model profiles.
func LoadDetected(path string, logger *slog.Logger) (*SystemProfile, error) {
	if path == "" {
		path = DetectedPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read detected profile: %w", err)
	}

	var profile SystemProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		logger.Warn("detected.json corrupt or incompatible; ignoring", "path", path, "error", err)
		return nil, nil
	}
	switch profile.Tier {
	case features.TierNano, features.TierSmall, features.TierMedium, features.TierLarge, features.TierServer:
	default:
		logger.Warn("detected.json has unknown tier; ignoring", "tier", profile.Tier)
		return nil, nil
	}
	return &profile, nil
}

// SaveDetected persists a profile (used by tests and by the probe's
// import of this package).
func SaveDetected(profile *SystemProfile, path string) error {
	if path == "" {
		path = DetectedPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return os.WriteFile(path, data, 0o640)
}

// ModelForKey maps a model profile key onto the detected profile's
// recommendation. Unknown keys fall back to the quality model.
func (p *SystemProfile) ModelForKey(key string) string {
	switch key {
	case "fast":
		return p.FastModel
	case "routing":
		return p.RoutingModel
	default:
		return p.QualityModel
	}
}
