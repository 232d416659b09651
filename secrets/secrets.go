// Package secrets resolves provider API keys from the environment, the OS
// keyring, or a static in-memory store.
package secrets

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

const keyringService = "mirascope"

// Store reads and writes named secrets. Implementations that cannot write,
// like the environment store, return an error from Set and Delete.
type Store interface {
	Get(name string) (string, error)
	Set(name string, value string) error
	Delete(name string) error
	Type() StoreType
}

type StoreType string

const (
	EnvStoreType     StoreType = "env"
	KeyringStoreType StoreType = "keyring"
	StaticStoreType  StoreType = "static"
)

// LoadDotEnv loads .env files into the process environment so the env store
// can see them. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// EnvStore reads secrets from MIRASCOPE_-prefixed environment variables.
type EnvStore struct{}

func (e EnvStore) Get(name string) (string, error) {
	name = fmt.Sprintf("MIRASCOPE_%s", name)
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("secret %s not found in environment", name)
	}
	return value, nil
}

func (e EnvStore) Set(name string, value string) error {
	return fmt.Errorf("environment secrets are read-only, export MIRASCOPE_%s instead", name)
}

func (e EnvStore) Delete(name string) error {
	return fmt.Errorf("environment secrets are read-only, unset MIRASCOPE_%s instead", name)
}

func (e EnvStore) Type() StoreType {
	return EnvStoreType
}

// KeyringStore keeps secrets in the OS keyring.
type KeyringStore struct{}

func (k KeyringStore) Get(name string) (string, error) {
	value, err := keyring.Get(keyringService, name)
	if err != nil {
		return "", fmt.Errorf("retrieving %s from keyring: %w", name, err)
	}
	return value, nil
}

func (k KeyringStore) Set(name string, value string) error {
	if err := keyring.Set(keyringService, name, value); err != nil {
		return fmt.Errorf("setting %s in keyring: %w", name, err)
	}
	return nil
}

func (k KeyringStore) Delete(name string) error {
	if err := keyring.Delete(keyringService, name); err != nil {
		return fmt.Errorf("deleting %s from keyring: %w", name, err)
	}
	return nil
}

func (k KeyringStore) Type() StoreType {
	return KeyringStoreType
}

// StaticStore holds secrets in memory. Useful for tests and for keys already
// present in a config file.
type StaticStore struct {
	values map[string]string
}

func NewStaticStore(values map[string]string) *StaticStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &StaticStore{values: copied}
}

func (s *StaticStore) Get(name string) (string, error) {
	if value, ok := s.values[name]; ok {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found", name)
}

func (s *StaticStore) Set(name string, value string) error {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[name] = value
	return nil
}

func (s *StaticStore) Delete(name string) error {
	delete(s.values, name)
	return nil
}

func (s *StaticStore) Type() StoreType {
	return StaticStoreType
}

// Open returns a store of the given type, defaulting to the keyring.
func Open(storeType StoreType) Store {
	switch storeType {
	case EnvStoreType:
		return EnvStore{}
	case StaticStoreType:
		return NewStaticStore(nil)
	default:
		return KeyringStore{}
	}
}

// Chain tries each store in order and returns the first hit. Writes go to the
// first store that accepts them.
type Chain []Store

func (c Chain) Get(name string) (string, error) {
	var lastErr error
	for _, store := range c {
		value, err := store.Get(name)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("secret %s not found", name)
	}
	return "", lastErr
}

func (c Chain) Set(name string, value string) error {
	var lastErr error
	for _, store := range c {
		err := store.Set(name, value)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no store accepted secret %s", name)
	}
	return lastErr
}

func (c Chain) Delete(name string) error {
	var lastErr error
	for _, store := range c {
		if err := store.Delete(name); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c Chain) Type() StoreType {
	return StoreType("chain")
}
