package voice

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Quality tiers selectable at runtime.
const (
	TierMedium = "medium"
	TierHigh   = "high"
)

// Profile binds a quality tier to its on-disk Piper voice assets.
type Profile struct {
	Tier       string
	ModelFile  string
	ConfigFile string
}

var profiles = map[string]Profile{
	TierMedium: {Tier: TierMedium, ModelFile: "en_US-lessac-medium.onnx", ConfigFile: "en_US-lessac-medium.onnx.json"},
	TierHigh:   {Tier: TierHigh, ModelFile: "en_US-lessac-high.onnx", ConfigFile: "en_US-lessac-high.onnx.json"},
}

// ForTier returns the profile for a quality tier.
func ForTier(tier string) (Profile, error) {
	p, ok := profiles[tier]
	if !ok {
		return Profile{}, fmt.Errorf("unknown voice tier %q (have: %s)", tier, strings.Join(Tiers(), ", "))
	}
	return p, nil
}

// Tiers lists the known quality tiers.
func Tiers() []string {
	return []string{TierMedium, TierHigh}
}

// ModelPath returns the absolute location of the .onnx model under dir.
func (p Profile) ModelPath(dir string) string {
	return filepath.Join(dir, p.ModelFile)
}

// ConfigPath returns the absolute location of the .onnx.json sidecar under dir.
func (p Profile) ConfigPath(dir string) string {
	return filepath.Join(dir, p.ConfigFile)
}
