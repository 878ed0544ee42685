// Package credentials resolves and stores the catalog API key.
//
// Resolution order is flag > environment > OS keyring. The keyring entry is
// written by `specsync auth login` and removed by `specsync auth logout`;
// env-based setups never touch the keyring.
package credentials

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// ErrNotFound indicates no API key could be resolved from any source.
var ErrNotFound = errors.New("no API key found")

const (
	keyringService = "specsync"
	keyringUser    = "catalog-api-key"
)

// Source identifies where a resolved API key came from.
type Source string

const (
	// SourceFlag means the key was passed on the command line.
	SourceFlag Source = "flag"
	// SourceEnv means the key was read from an environment variable.
	SourceEnv Source = "env"
	// SourceKeyring means the key was read from the OS keyring.
	SourceKeyring Source = "keyring"
)

// Resolve returns the API key from the first available source: the flag
// value, then the given environment variables in order, then the keyring.
func Resolve(flagValue string, envVars ...string) (string, Source, error) {
	if flagValue != "" {
		return flagValue, SourceFlag, nil
	}

	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v, SourceEnv, nil
		}
	}

	stored, err := Load()
	if err == nil && stored != "" {
		return stored, SourceKeyring, nil
	}

	return "", "", ErrNotFound
}

// Save stores the API key in the OS keyring.
func Save(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("API key is empty")
	}
	if err := keyring.Set(keyringService, keyringUser, apiKey); err != nil {
		return fmt.Errorf("failed to store API key in keyring: %w", err)
	}
	return nil
}

// Load reads the API key from the OS keyring.
func Load() (string, error) {
	key, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read API key from keyring: %w", err)
	}
	return key, nil
}

// Delete removes the API key from the OS keyring. Deleting a missing entry
// is not an error.
func Delete() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete API key from keyring: %w", err)
	}
	return nil
}
