// Package credentials keeps the upstream service token in the OS keyring.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name entries are stored under.
const Service = "hedgewatch"

// ErrNotFound is returned when no token is stored.
var ErrNotFound = errors.New("no stored token")

// Store persists tokens keyed by account (the upstream base URL).
type Store interface {
	Get(account string) (string, error)
	Set(account, token string) error
	Delete(account string) error
}

// Keyring is the Store backed by the operating system keyring.
type Keyring struct{}

func (Keyring) Get(account string) (string, error) {
	token, err := keyring.Get(Service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get: %w", err)
	}
	return token, nil
}

func (Keyring) Set(account, token string) error {
	if err := keyring.Set(Service, account, token); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (Keyring) Delete(account string) error {
	err := keyring.Delete(Service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// Source names where a resolved token came from.
type Source string

const (
	SourceNone    Source = ""
	SourceFlag    Source = "flag"
	SourceEnv     Source = "env"
	SourceConfig  Source = "config"
	SourceKeyring Source = "keyring"
)

// Lookup holds the candidates for a token in precedence order.
type Lookup struct {
	Flag    string
	Env     string
	Config  string
	Account string // keyring account; empty skips the keyring
	Store   Store
}

// Resolve returns the first non-empty token: flag, env, config, keyring.
// A keyring error other than ErrNotFound is returned so callers can warn.
func (l Lookup) Resolve() (string, Source, error) {
	for _, c := range []struct {
		v   string
		src Source
	}{
		{l.Flag, SourceFlag},
		{l.Env, SourceEnv},
		{l.Config, SourceConfig},
	} {
		if v := strings.TrimSpace(c.v); v != "" {
			return v, c.src, nil
		}
	}
	if l.Store == nil || l.Account == "" {
		return "", SourceNone, nil
	}
	token, err := l.Store.Get(l.Account)
	if errors.Is(err, ErrNotFound) {
		return "", SourceNone, nil
	}
	if err != nil {
		return "", SourceNone, err
	}
	return token, SourceKeyring, nil
}
