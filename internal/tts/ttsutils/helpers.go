// Package ttsutils provides object key naming, URL joining, and formatting
// helpers shared by the service and its client.
package ttsutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Key and path constants.
const (
	defaultKeyPrefix       = "tts"
	manifestFileName       = "manifest.json"
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
	urlSeparator           = "/"
	chunkKeyFormat         = "%s-%s-%03d%s"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%.1fs"
	formatMinutes   = "%dm %.1fs"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

// File extension constants.
const (
	extHTM  = ".htm"
	extHTML = ".html"
	extMD   = ".md"
	extSSML = ".ssml"
	extTXT  = ".txt"
	extXML  = ".xml"
)

// Error format string constants.
const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
)

var invalidCharReplacer = strings.NewReplacer(
	"<", invalidCharReplacement,
	">", invalidCharReplacement,
	":", invalidCharReplacement,
	"\"", invalidCharReplacement,
	"/", invalidCharReplacement,
	"\\", invalidCharReplacement,
	"|", invalidCharReplacement,
	"?", invalidCharReplacement,
	"*", invalidCharReplacement,
	" ", invalidCharReplacement,
)

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// SanitizeFilename replaces characters that are invalid in most filesystems
// and object stores.
func SanitizeFilename(filename string) string {
	return invalidCharReplacer.Replace(filename)
}

// SanitizeKeyPrefix returns a safe object key prefix, "tts" when empty.
func SanitizeKeyPrefix(prefix string) string {
	prefix = strings.Trim(SanitizeFilename(strings.TrimSpace(prefix)), invalidCharReplacement+"-.")
	if prefix == "" {
		return defaultKeyPrefix
	}

	return prefix
}

// ChunkKey names the object holding one synthesized segment:
// <prefix>-<batch>-<index padded to 3 digits><extension>.
func ChunkKey(prefix, batchID string, index int, extension string) string {
	return fmt.Sprintf(chunkKeyFormat, SanitizeKeyPrefix(prefix), batchID, index, extension)
}

// ManifestKey names the manifest object written for a workflow.
func ManifestKey(workflowID string) string {
	return SanitizeFilename(workflowID) + urlSeparator + manifestFileName
}

// JoinURL joins a base URL and an object key with exactly one slash.
func JoinURL(base, key string) string {
	return strings.TrimRight(base, urlSeparator) + urlSeparator + strings.TrimLeft(key, urlSeparator)
}

// FormatDuration formats a duration in a human-readable string (e.g., "1h 15m", "5m
// 30.5s", "45.2s").
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf(formatMinutes, minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf(formatHours, hours, remainingMinutes)
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsValidTextFile checks if a filename has a common text or markup file extension.
func IsValidTextFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extTXT, extMD, extSSML, extXML, extHTML, extHTM:
		return true
	default:
		return false
	}
}
