// SPDX-License-Identifier: MIT

// Package media translates recorder storage locations into URLs the UI's
// media element can stream from.
package media

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/micgw/internal/config"
	"github.com/ManuGH/micgw/internal/metrics"
)

var (
	// ErrUnmapped is returned when no path mapping covers the location.
	ErrUnmapped = errors.New("media: storage location outside mapped roots")
	// ErrInaccessible is returned when the mapped file cannot be read.
	ErrInaccessible = errors.New("media: recording file not accessible")
)

// Resolver maps recorder-side storage paths to local files and playback URLs.
type Resolver struct {
	mappings []config.PathMapping
	base     string // optional public base URL, e.g. "https://gw.example.com"

	// stat is swappable for tests.
	stat func(string) (fs.FileInfo, error)
}

// NewResolver creates a Resolver with the configured mappings. Invalid
// mappings (relative or root-only) are dropped.
func NewResolver(mappings []config.PathMapping, baseURL string) *Resolver {
	var valid []config.PathMapping
	for _, m := range mappings {
		if !filepath.IsAbs(m.RecorderRoot) || !filepath.IsAbs(m.LocalRoot) {
			continue
		}
		recorderRoot := strings.TrimSuffix(m.RecorderRoot, "/")
		localRoot := strings.TrimSuffix(m.LocalRoot, "/")
		if recorderRoot == "" || recorderRoot == "/" || localRoot == "" || localRoot == "/" {
			continue
		}
		valid = append(valid, config.PathMapping{
			RecorderRoot: recorderRoot,
			LocalRoot:    localRoot,
		})
	}

	return &Resolver{
		mappings: valid,
		base:     strings.TrimRight(baseURL, "/"),
		stat:     os.Stat,
	}
}

// LocalRoots returns the local filesystem roots playback files are served
// from, in mapping order.
func (r *Resolver) LocalRoots() []string {
	roots := make([]string, 0, len(r.mappings))
	for _, m := range r.mappings {
		roots = append(roots, m.LocalRoot)
	}
	return roots
}

// match finds the mapping covering the location. Returns the mapping index
// and the path relative to its recorder root.
//
// Security:
// - Blocks path traversal
// - Requires absolute paths
// - Longest-prefix matching avoids root collisions
func (r *Resolver) match(location string) (int, string, bool) {
	clean := path.Clean(location)

	if !strings.HasPrefix(clean, "/") || clean == "/" {
		return 0, "", false
	}
	if strings.Contains(clean, "..") {
		return 0, "", false
	}

	best := -1
	bestRel := ""
	longest := 0

	for i := range r.mappings {
		root := r.mappings[i].RecorderRoot

		if clean == root {
			// A bare root is a directory, never a playable artifact.
			continue
		}
		if !strings.HasPrefix(clean, root+"/") {
			continue
		}

		if len(root) > longest {
			longest = len(root)
			best = i
			bestRel = strings.TrimPrefix(clean, root+"/")
		}
	}

	if best < 0 {
		return 0, "", false
	}
	return best, bestRel, true
}

// ResolveLocal maps a recorder storage path to a local filesystem path.
// Returns ("", "", false) if no mapping covers the path or it is invalid.
func (r *Resolver) ResolveLocal(location string) (string, string, bool) {
	idx, rel, ok := r.match(location)
	if !ok {
		return "", "", false
	}
	return filepath.Join(r.mappings[idx].LocalRoot, filepath.FromSlash(rel)), rel, true
}

// Resolve translates a recorder storage location into a playable URL.
// The file must exist locally and be a regular file; a recording the gateway
// cannot reach is not playable.
//
// The URL carries the mapping index (/media/<mapping>/<rel>) so the file
// server serves from the exact root that resolved the location; a same-named
// file under another mapping can never shadow it.
func (r *Resolver) Resolve(location string) (string, error) {
	idx, rel, ok := r.match(location)
	if !ok {
		metrics.IncPlaybackResolution("unmapped")
		return "", fmt.Errorf("%w: %q", ErrUnmapped, location)
	}

	local := filepath.Join(r.mappings[idx].LocalRoot, filepath.FromSlash(rel))
	info, err := r.stat(local)
	if err != nil || !info.Mode().IsRegular() {
		metrics.IncPlaybackResolution("inaccessible")
		return "", fmt.Errorf("%w: %q", ErrInaccessible, location)
	}

	metrics.IncPlaybackResolution("success")
	return r.base + "/media/" + strconv.Itoa(idx) + "/" + escapeSegments(rel), nil
}

// escapeSegments escapes each path segment while keeping separators intact.
func escapeSegments(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
