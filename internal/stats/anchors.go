package stats

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// anchorFile is the on-disk reference table:
//
//	anchors:
//	  - level: 1
//	    total: 40
type anchorFile struct {
	Anchors []Anchor `yaml:"anchors"`
}

// ParseAnchors decodes a YAML anchor table.
func ParseAnchors(data []byte) (Curve, error) {
	var f anchorFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Curve{}, fmt.Errorf("parse anchor table: %w", err)
	}
	return NewCurve(f.Anchors)
}

// LoadAnchorFile reads a YAML anchor table from path.
func LoadAnchorFile(path string) (Curve, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Curve{}, fmt.Errorf("read anchor table: %w", err)
	}
	return ParseAnchors(data)
}

// WriteAnchorFile writes c to path as a YAML anchor table.
func WriteAnchorFile(path string, c Curve) error {
	data, err := yaml.Marshal(anchorFile{Anchors: c.Anchors()})
	if err != nil {
		return fmt.Errorf("marshal anchor table: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write anchor table: %w", err)
	}
	return nil
}

// WatchAnchorFile calls onChange with the freshly parsed curve every time the file
// at path is written or replaced. It watches the parent directory because editors
// usually replace files instead of writing in place. A table that fails to parse
// is logged and ignored. WatchAnchorFile blocks until ctx is done.
func WatchAnchorFile(ctx context.Context, path string, logger *slog.Logger, onChange func(Curve)) (err error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create anchor file watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch anchor directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			curve, loadErr := LoadAnchorFile(target)
			if loadErr != nil {
				logger.Warn("ignoring invalid anchor table", "path", target, "error", loadErr)
				continue
			}
			logger.Info("anchor table reloaded", "path", target, "anchors", curve.Len())
			onChange(curve)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("anchor file watcher error", "error", watchErr)
		}
	}
}
