// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/micgw/internal/log"
	"github.com/ManuGH/micgw/internal/metrics"
)

// mediaFileServer serves recording files with security checks against path
// traversal, symlink escapes and directory listing. URLs have the form
// /media/<mapping>/<rel>: the leading segment picks the mapped local root
// the playback resolver built the URL for, so a same-named file under
// another mapping can never shadow the recording.
func (s *Server) mediaFileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "api")

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			logger.Warn().Str(log.FieldEvent, "media_req.denied").Str(log.FieldPath, r.URL.Path).Str("reason", "method_not_allowed").Msg("method not allowed")
			metrics.IncMediaRequest("denied")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Decode exactly once, from the escaped form. net/http has already
		// decoded r.URL.Path; decoding that again would corrupt names with a
		// literal percent.
		raw := strings.TrimPrefix(r.URL.EscapedPath(), "/media/")
		if raw == "" || strings.HasSuffix(raw, "/") {
			logger.Warn().Str(log.FieldEvent, "media_req.denied").Str(log.FieldPath, r.URL.Path).Str("reason", "directory_listing").Msg("directory listing forbidden")
			metrics.IncMediaRequest("denied")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		rel, err := url.PathUnescape(raw)
		if err != nil {
			logger.Warn().Str(log.FieldEvent, "media_req.denied").Str(log.FieldPath, r.URL.Path).Str("reason", "bad_encoding").Msg("undecodable path")
			metrics.IncMediaRequest("denied")
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		if containsTraversal(rel) {
			logger.Warn().Str(log.FieldEvent, "media_req.denied").Str(log.FieldPath, r.URL.Path).Str("reason", "path_escape").Msg("detected traversal sequence")
			metrics.IncMediaRequest("denied")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		realPath, ok := s.locateMediaFile(rel)
		if !ok {
			logger.Info().Str(log.FieldEvent, "media_req.not_found").Str(log.FieldPath, r.URL.Path).Msg("file not found under mapped root")
			metrics.IncMediaRequest("not_found")
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		// #nosec G304 -- realPath is confined to a mapped root by locateMediaFile
		f, err := os.Open(realPath)
		if err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "media_req.internal_error").Str(log.FieldPath, realPath).Msg("could not open file for serving")
			metrics.IncMediaRequest("denied")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := f.Close(); err != nil {
				logger.Warn().Err(err).Str(log.FieldPath, realPath).Msg("failed to close file")
			}
		}()

		info, err := f.Stat()
		if err != nil {
			logger.Error().Err(err).Str(log.FieldEvent, "media_req.internal_error").Str(log.FieldPath, realPath).Msg("could not stat opened file")
			metrics.IncMediaRequest("denied")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		// Weak validator: recordings are written once, modtime+size is enough.
		etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			metrics.IncMediaRequest("cache_hit")
			w.WriteHeader(http.StatusNotModified)
			return
		}

		if ct := audioContentType(info.Name()); ct != "" {
			w.Header().Set("Content-Type", ct)
		}

		logger.Info().Str(log.FieldEvent, "media_req.allowed").Str(log.FieldPath, r.URL.Path).Msg("serving recording")
		metrics.IncMediaRequest("allowed")
		// ServeContent handles Range requests, which the media element relies
		// on for seeking.
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// locateMediaFile resolves "<mapping>/<rel>" against the addressed local
// root. The resolved path must stay inside that root after symlink
// evaluation and must be a regular file.
func (s *Server) locateMediaFile(rel string) (string, bool) {
	idxStr, rest, found := strings.Cut(rel, "/")
	if !found || rest == "" {
		return "", false
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return "", false
	}
	roots := s.resolver.LocalRoots()
	if idx < 0 || idx >= len(roots) {
		return "", false
	}

	absRoot, err := filepath.Abs(roots[idx])
	if err != nil {
		return "", false
	}
	candidate := filepath.Join(absRoot, filepath.FromSlash(rest))

	realPath, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", false
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", false
	}

	relPath, err := filepath.Rel(realRoot, realPath)
	if err != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return "", false
	}

	info, err := os.Stat(realPath)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return realPath, true
}

// audioContentType maps recording extensions to explicit content types so the
// media element never has to sniff.
func audioContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return ""
	}
}

// containsTraversal rejects parent-directory segments and NUL bytes in an
// already-decoded path. Names merely containing dots ("a..b.wav") are legal;
// the symlink confinement in locateMediaFile is the backstop.
func containsTraversal(p string) bool {
	if strings.IndexByte(p, 0x00) >= 0 {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
