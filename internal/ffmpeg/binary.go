// Package ffmpeg provides encoder binary resolution, stderr progress
// parsing, and process inspection helpers for the supervisor.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// versionPattern extracts the version token from "ffmpeg version N.N.N ...".
var versionPattern = regexp.MustCompile(`ffmpeg version (\S+)`)

// ResolveBinary returns the encoder binary path to spawn. A configured
// path wins; otherwise PATH is searched for "ffmpeg".
func ResolveBinary(configured string) (string, error) {
	if configured != "" {
		if strings.ContainsRune(configured, os.PathSeparator) {
			if _, err := os.Stat(configured); err != nil {
				return "", fmt.Errorf("configured ffmpeg binary: %w", err)
			}
			return configured, nil
		}
		return exec.LookPath(configured)
	}

	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return path, nil
}

// BinaryInfo describes a resolved encoder binary.
type BinaryInfo struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// BinaryDetector resolves and caches encoder binary information.
type BinaryDetector struct {
	configured string

	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewBinaryDetector creates a detector preferring the configured path.
func NewBinaryDetector(configured string) *BinaryDetector {
	return &BinaryDetector{
		configured: configured,
		cacheTTL:   5 * time.Minute,
	}
}

// Detect resolves the binary and probes its version, caching the result.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	path, err := ResolveBinary(d.configured)
	if err != nil {
		return nil, err
	}

	info := &BinaryInfo{Path: path}
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err == nil {
		if m := versionPattern.FindStringSubmatch(string(out)); len(m) > 1 {
			info.Version = m[1]
		}
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear drops the cached binary information.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}
