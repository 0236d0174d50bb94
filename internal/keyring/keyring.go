// Package keyring defines the opaque credential store the sync engine reads
// provider tokens from. No keyring client library is wired in: the engine
// only ever needs a lookup by target id, so it depends on the narrow
// CredentialStore interface below rather than a concrete secrets backend.
package keyring

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/skaphos/mirrorkeeper/internal/model"
)

// CredentialStore resolves provider credentials for a target at call time.
// It is never asked to persist anything: token issuance and rotation happen
// outside mirrorkeeper (see the "token guide" CLI verb), this interface only
// reads.
type CredentialStore interface {
	Lookup(targetID string) (model.Credentials, error)
}

var envSafeChars = regexp.MustCompile(`[^A-Z0-9_]`)

// EnvVarName derives the environment variable name mirrorkeeper looks up for
// a given target id: MIRRORKEEPER_TOKEN_<SANITIZED_TARGET_ID>.
func EnvVarName(targetID string) string {
	upper := strings.ToUpper(targetID)
	sanitized := envSafeChars.ReplaceAllString(upper, "_")
	return "MIRRORKEEPER_TOKEN_" + sanitized
}

// EnvStore is the default CredentialStore: it reads a per-target token from
// an environment variable, falling back to a single MIRRORKEEPER_TOKEN for
// setups with one provider account.
type EnvStore struct {
	// Lookup is injectable for tests; defaults to os.LookupEnv.
	Lookup_ func(string) (string, bool)
}

// NewEnvStore returns an EnvStore backed by the real process environment.
func NewEnvStore() *EnvStore {
	return &EnvStore{Lookup_: os.LookupEnv}
}

// Lookup implements CredentialStore.
func (s *EnvStore) Lookup(targetID string) (model.Credentials, error) {
	lookup := s.Lookup_
	if lookup == nil {
		lookup = os.LookupEnv
	}
	name := EnvVarName(targetID)
	if token, ok := lookup(name); ok && token != "" {
		return model.Credentials{Token: token}, nil
	}
	if token, ok := lookup("MIRRORKEEPER_TOKEN"); ok && token != "" {
		return model.Credentials{Token: token}, nil
	}
	return model.Credentials{}, fmt.Errorf("keyring: no token found for target %q (set %s)", targetID, name)
}

// FileStore is a CredentialStore backed by a local JSON file mapping target
// id to token, consulted only when the environment variable lookup misses.
// `token set` is the only writer; mirrorkeeper itself never rotates or
// revokes what it finds there.
type FileStore struct {
	env  *EnvStore
	path string
}

// NewFileStore wraps an EnvStore with a file-backed fallback at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{env: NewEnvStore(), path: path}
}

// Lookup implements CredentialStore: environment variables win, then the
// token file, matching the documented precedence in `token guide`.
func (s *FileStore) Lookup(targetID string) (model.Credentials, error) {
	if creds, err := s.env.Lookup(targetID); err == nil {
		return creds, nil
	}
	tokens, err := readTokenFile(s.path)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("keyring: no token found for target %q (set %s or run `mirrorkeeper token set`)", targetID, EnvVarName(targetID))
	}
	if token, ok := tokens[targetID]; ok && token != "" {
		return model.Credentials{Token: token}, nil
	}
	return model.Credentials{}, fmt.Errorf("keyring: no token found for target %q (set %s or run `mirrorkeeper token set`)", targetID, EnvVarName(targetID))
}

// SetToken persists a target's token into the token file at path, creating
// it if necessary. The file is written atomically (temp file then rename),
// matching the config and cache packages' save discipline, and kept at 0600
// since it holds plaintext credentials.
func SetToken(path, targetID, token string) error {
	tokens, err := readTokenFile(path)
	if err != nil {
		tokens = map[string]string{}
	}
	tokens[targetID] = token
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("keyring: encode token file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("keyring: write token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("keyring: rename token file: %w", err)
	}
	return nil
}

func readTokenFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tokens map[string]string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("keyring: parse token file: %w", err)
	}
	return tokens, nil
}

// StaticStore is an in-memory CredentialStore for tests and single-run CLI
// invocations where credentials were already resolved by the caller.
type StaticStore struct {
	Tokens map[string]model.Credentials
}

// Lookup implements CredentialStore.
func (s *StaticStore) Lookup(targetID string) (model.Credentials, error) {
	if creds, ok := s.Tokens[targetID]; ok {
		return creds, nil
	}
	return model.Credentials{}, fmt.Errorf("keyring: no credentials configured for target %q", targetID)
}
