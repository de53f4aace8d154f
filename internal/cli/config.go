package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config holds CLI configuration
type Config struct {
	ServerURL      string
	Credential     string
	CredentialFile string
	Output         string
	Verbose        bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:      getEnvOrDefault("GRIMOIRE_SERVER", "http://localhost:8080"),
		Credential:     os.Getenv("GRIMOIRE_CREDENTIAL"),
		CredentialFile: getEnvOrDefault("GRIMOIRE_CREDENTIAL_FILE", defaultCredentialFile()),
		Output:         "text",
		Verbose:        false,
	}
}

// LoadCredential loads the credential from file if not already set
func (c *Config) LoadCredential() error {
	if c.Credential != "" {
		return nil
	}

	data, err := os.ReadFile(c.CredentialFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // No credential file is fine
		}
		return err
	}

	c.Credential = strings.TrimSpace(string(data))
	return nil
}

// SaveCredential saves the credential to the credential file
func (c *Config) SaveCredential(credential string) error {
	c.Credential = credential

	dir := filepath.Dir(c.CredentialFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return os.WriteFile(c.CredentialFile, []byte(credential), 0600)
}

func defaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".grimoire/credential"
	}
	return filepath.Join(home, ".grimoire", "credential")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
