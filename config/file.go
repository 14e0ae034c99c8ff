package config

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// LoadFile reads a SASL-style configuration file of "key: value" lines.
// Blank lines and lines starting with '#' are skipped. The returned source
// carries raw values only; pass it to Resolve for validation.
func LoadFile(path string) (MapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	src := MapSource{}
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, found := strings.Cut(text, ":")
		if !found {
			return nil, fmt.Errorf("config: %s:%d: expected 'key: value'", path, line)
		}
		src[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return src, nil
}

// Watch invokes onChange whenever the configuration file is written or
// replaced. A resolved Config stays immutable for the plugin's lifetime, so
// the callback is a signal that the host should re-initialize, not a live
// reload. Watch blocks until ctx is cancelled or the watcher fails.
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func()) error {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				log.Info("configuration file changed; re-initialization required",
					slog.String("path", path), slog.String("op", ev.Op.String()))
				onChange()
				// Editors often replace the file; re-add in case the inode changed.
				if ev.Op&fsnotify.Rename != 0 {
					_ = w.Add(path)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("configuration watcher error", slog.String("error", err.Error()))
		}
	}
}
