package helper

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SessionDirs lays out per-session files:
//
//	<AuthDir>/session-<id>/   whatsmeow device store
//	<CacheDir>/session-<id>/  staged uploads
type SessionDirs struct {
	AuthDir  string
	CacheDir string
}

// dirName escapes the id instead of replacing characters so two distinct
// ids never share a directory.
func (d SessionDirs) dirName(sessionID string) string {
	return "session-" + url.PathEscape(sessionID)
}

func (d SessionDirs) AuthPath(sessionID string) string {
	return filepath.Join(d.AuthDir, d.dirName(sessionID))
}

func (d SessionDirs) CachePath(sessionID string) string {
	return filepath.Join(d.CacheDir, d.dirName(sessionID))
}

// EnsureAuthPath creates the auth directory of a session.
func (d SessionDirs) EnsureAuthPath(sessionID string) (string, error) {
	dir := d.AuthPath(sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create auth directory: %w", err)
	}
	return dir, nil
}

// Remove deletes both directories of a session recursively.
func (d SessionDirs) Remove(sessionID string) error {
	return errors.Join(
		os.RemoveAll(d.AuthPath(sessionID)),
		os.RemoveAll(d.CachePath(sessionID)),
	)
}

// StageUpload copies src into the session cache under a unique name and
// returns the file path. At most maxBytes are accepted.
func (d SessionDirs) StageUpload(sessionID, filename string, src io.Reader, maxBytes int64) (string, error) {
	dir := d.CachePath(sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	name := uuid.NewString() + "-" + SanitizeFilename(filename)
	path := filepath.Join(dir, name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}

	n, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > maxBytes {
		err = fmt.Errorf("file too large: max size is %d bytes", maxBytes)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// SanitizeFilename keeps the base name and strips anything outside
// [a-zA-Z0-9._-].
func SanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	filename = strings.ReplaceAll(filename, "..", "")
	filename = unsafePathChars.ReplaceAllString(filename, "")
	if filename == "" || filename == "." {
		return "upload"
	}
	return filename
}
