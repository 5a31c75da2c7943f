// Package settings persists the control API URL and verified token in a JSON
// file under the user's home directory.
package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// PathEnv overrides the credentials file location.
const PathEnv = "SERVGATE_CREDENTIALS"

// Credentials are what `token verify` saves for later commands.
type Credentials struct {
	APIURL string `json:"api"`
	Token  string `json:"token"`
}

// Path returns the absolute path to the credentials file.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(PathEnv)); p != "" {
		return p
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".servgate", "credentials.json")
}

// Load reads and validates the credentials file at path.
func Load(path string) (Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credentials{}, err
	}
	c.APIURL = strings.TrimSpace(c.APIURL)
	c.Token = strings.TrimSpace(c.Token)
	if c.APIURL == "" || c.Token == "" {
		return Credentials{}, errors.New("credentials file is missing `api` or `token`")
	}
	return c, nil
}

// Save writes credentials to path with 0600 permissions.
func Save(path string, c Credentials) error {
	c.APIURL = strings.TrimSpace(c.APIURL)
	c.Token = strings.TrimSpace(c.Token)
	if c.APIURL == "" || c.Token == "" {
		return errors.New("`api` and `token` are required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
