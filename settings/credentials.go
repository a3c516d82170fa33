// Package settings stores API credentials outside the project
// configuration. mctrans.yaml is meant to be shared alongside a modpack,
// so the key for the translation endpoint lives in the XDG data
// directory instead:
//
//	$XDG_DATA_HOME/mctrans/auth.json  (default: ~/.local/share/mctrans/)
//
// auth.json maps endpoint base URLs to API keys and is written with 0600
// permissions.
//
// Lookup order for the key used by a run:
//  1. --key flag / api_key in mctrans.yaml (highest priority)
//  2. MCTRANS_API_KEY environment variable
//  3. This credential store, keyed by base_url
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvKey is the environment variable consulted before the store.
const EnvKey = "MCTRANS_API_KEY"

const authFileName = "auth.json"

// Store maps endpoint base URLs to API keys.
type Store map[string]string

func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mctrans"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "mctrans"), nil
}

// FilePath returns the auth.json path, or "" if it cannot be determined.
func FilePath() string {
	dir, err := dataDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, authFileName)
}

// Load reads the credential store. Missing or unreadable files yield an
// empty store; credentials are an optional convenience, never a hard
// dependency.
func Load() Store {
	path := FilePath()
	if path == "" {
		return Store{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Store{}
	}
	var s Store
	if err := json.Unmarshal(data, &s); err != nil || s == nil {
		return Store{}
	}
	return s
}

// Save writes the credential store with owner-only permissions.
func Save(s Store) error {
	dir, err := dataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	path := filepath.Join(dir, authFileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// normalizeURL makes base URL keys insensitive to a trailing slash.
func normalizeURL(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

// GetAPIKey returns the stored key for an endpoint, or "".
func GetAPIKey(baseURL string) string {
	return Load()[normalizeURL(baseURL)]
}

// SetAPIKey stores a key for an endpoint.
func SetAPIKey(baseURL, key string) error {
	s := Load()
	s[normalizeURL(baseURL)] = key
	return Save(s)
}

// RemoveAPIKey deletes the stored key for an endpoint.
func RemoveAPIKey(baseURL string) error {
	s := Load()
	delete(s, normalizeURL(baseURL))
	return Save(s)
}

// MaskKey renders a key safe for display: first and last four characters
// with the middle elided.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
