// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: anthropic-api-key, ocr-api-key, gmail-user, gmail-app-password,
// minio-access-key, minio-secret-key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Key file names.
const (
	AnthropicAPIKey  = "anthropic-api-key"
	OCRAPIKey        = "ocr-api-key"
	GmailUser        = "gmail-user"
	GmailAppPassword = "gmail-app-password"
	MinioAccessKey   = "minio-access-key"
	MinioSecretKey   = "minio-secret-key"
)

// envFallbacks maps key files to the bare environment variables the
// pipeline has always honoured.
var envFallbacks = map[string]string{
	AnthropicAPIKey:  "ANTHROPIC_API_KEY",
	OCRAPIKey:        "DOTSOCR_API_KEY",
	GmailUser:        "GMAIL_USER",
	GmailAppPassword: "GMAIL_APP_PASSWORD",
	MinioAccessKey:   "MINIO_ACCESS_KEY",
	MinioSecretKey:   "MINIO_SECRET_KEY",
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "err", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Resolve returns the first non-empty value among explicit, the loaded
// secret for key, and the key's legacy environment variable.
func Resolve(loaded map[string]string, key, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v, ok := loaded[key]; ok {
		return v
	}
	if env, ok := envFallbacks[key]; ok {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}
