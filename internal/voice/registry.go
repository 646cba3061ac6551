package voice

import (
	"errors"
	"fmt"
)

// ErrUnknownAsset marks a filename with no registered download location.
var ErrUnknownAsset = errors.New("voice asset not in registry")

const hfBase = "https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0/en/en_US/lessac"

// Registry maps voice asset filenames to download URLs.
type Registry struct {
	urls map[string]string
}

// Builtin returns the registry of bundled lessac voices.
func Builtin() *Registry {
	return &Registry{urls: map[string]string{
		"en_US-lessac-medium.onnx":      hfBase + "/medium/en_US-lessac-medium.onnx",
		"en_US-lessac-medium.onnx.json": hfBase + "/medium/en_US-lessac-medium.onnx.json",
		"en_US-lessac-high.onnx":        hfBase + "/high/en_US-lessac-high.onnx",
		"en_US-lessac-high.onnx.json":   hfBase + "/high/en_US-lessac-high.onnx.json",
	}}
}

// Merge adds entries to the registry, replacing existing filenames.
func (r *Registry) Merge(entries map[string]string) {
	for name, url := range entries {
		r.urls[name] = url
	}
}

// URL resolves the download location for an asset filename.
func (r *Registry) URL(filename string) (string, error) {
	u, ok := r.urls[filename]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAsset, filename)
	}
	return u, nil
}
