package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ResolveModel maps name onto the installed model list: an exact tag matches
// as-is, and a bare name resolves to its :latest tag when that is installed.
func ResolveModel(models []ModelInfo, name string) (string, bool) {
	installed := make(map[string]bool, len(models))
	for _, m := range models {
		installed[m.Name] = true
	}
	if installed[name] {
		return name, true
	}
	if !strings.Contains(name, ":") {
		if latest := name + ":latest"; installed[latest] {
			return latest, true
		}
	}
	return name, false
}

// EnsureModel makes sure the named model is installed, resolving bare names
// to their :latest tag and pulling from the registry when nothing matches.
// It returns the name that should be used for chat requests.
func (c *Client) EnsureModel(ctx context.Context, name string, consumer func(PullProgress) error) (string, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return "", fmt.Errorf("list models: %w", err)
	}
	if resolved, ok := ResolveModel(models, name); ok {
		c.logger.Info("model ready", slog.String("model", resolved))
		return resolved, nil
	}

	c.logger.Info("pulling model", slog.String("model", name))
	if err := c.Pull(ctx, name, consumer); err != nil {
		return "", fmt.Errorf("pull model %s: %w", name, err)
	}
	return name, nil
}
