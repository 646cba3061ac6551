package voice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
)

// ProgressFunc receives byte counts while an asset streams to disk. total is
// non-positive when the server does not announce a length.
type ProgressFunc func(name string, read, total int64)

// Provisioner downloads missing voice assets into the voices directory.
type Provisioner struct {
	dir      string
	registry *Registry
	http     *http.Client
	logger   *slog.Logger
	progress ProgressFunc
}

func NewProvisioner(dir string, registry *Registry, logger *slog.Logger, progress ProgressFunc) *Provisioner {
	return &Provisioner{
		dir:      dir,
		registry: registry,
		http:     &http.Client{},
		logger:   logger.With(slog.String("component", "voice-provisioner")),
		progress: progress,
	}
}

// EnsureVoice makes sure the profile's model and config files exist locally,
// downloading whichever is missing. Files already present are never touched.
func (p *Provisioner) EnsureVoice(ctx context.Context, profile Profile) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create voices dir: %w", err)
	}

	modelPath := profile.ModelPath(p.dir)
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		url, err := p.registry.URL(profile.ModelFile)
		if err != nil {
			return err
		}
		p.logger.Info("downloading voice model", slog.String("file", profile.ModelFile))
		if err := p.download(ctx, url, modelPath, profile.ModelFile); err != nil {
			return fmt.Errorf("download voice model: %w", err)
		}
	}

	configPath := profile.ConfigPath(p.dir)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		url, err := p.registry.URL(profile.ConfigFile)
		if err != nil {
			return err
		}
		p.logger.Info("downloading voice config", slog.String("file", profile.ConfigFile))
		if err := p.fetch(ctx, url, configPath); err != nil {
			return fmt.Errorf("download voice config: %w", err)
		}
	}

	p.logger.Info("voice ready", slog.String("tier", profile.Tier), slog.String("model", modelPath))
	return nil
}

// download streams a large asset through a progress counter and renames it
// into place only once the full body has arrived.
func (p *Provisioner) download(ctx context.Context, url, path, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	counter := &progressCounter{name: name, total: resp.ContentLength, emit: p.progress}
	if _, err := io.Copy(f, io.TeeReader(resp.Body, counter)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// fetch writes a small asset in a single shot.
func (p *Provisioner) fetch(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

type progressCounter struct {
	name  string
	read  int64
	total int64
	emit  ProgressFunc
}

func (c *progressCounter) Write(b []byte) (int, error) {
	n := len(b)
	c.read += int64(n)
	if c.emit != nil {
		c.emit(c.name, c.read, c.total)
	}
	return n, nil
}
