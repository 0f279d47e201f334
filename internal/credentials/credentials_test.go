package credentials

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyring_RoundTrip(t *testing.T) {
	keyring.MockInit()
	var s Keyring

	if _, err := s.Get("http://host:8000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set("http://host:8000", "tok"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get("http://host:8000")
	if err != nil || got != "tok" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if err := s.Delete("http://host:8000"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete("http://host:8000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

type failingStore struct{ err error }

func (f failingStore) Get(string) (string, error) { return "", f.err }
func (f failingStore) Set(string, string) error   { return f.err }
func (f failingStore) Delete(string) error        { return f.err }

func TestLookup_Precedence(t *testing.T) {
	keyring.MockInit()
	Keyring{}.Set("acct", "from-keyring")

	tests := []struct {
		name   string
		lookup Lookup
		want   string
		src    Source
	}{
		{"flag wins", Lookup{Flag: "f", Env: "e", Config: "c", Account: "acct", Store: Keyring{}}, "f", SourceFlag},
		{"env", Lookup{Env: "e", Config: "c", Account: "acct", Store: Keyring{}}, "e", SourceEnv},
		{"config", Lookup{Config: "c", Account: "acct", Store: Keyring{}}, "c", SourceConfig},
		{"keyring", Lookup{Account: "acct", Store: Keyring{}}, "from-keyring", SourceKeyring},
		{"nothing stored", Lookup{Account: "other", Store: Keyring{}}, "", SourceNone},
		{"no store", Lookup{Account: "acct"}, "", SourceNone},
		{"blank flag ignored", Lookup{Flag: "  ", Config: "c"}, "c", SourceConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src, err := tt.lookup.Resolve()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want || src != tt.src {
				t.Errorf("got %q from %q, want %q from %q", got, src, tt.want, tt.src)
			}
		})
	}
}

func TestLookup_KeyringError(t *testing.T) {
	boom := errors.New("dbus unavailable")
	_, _, err := Lookup{Account: "a", Store: failingStore{err: boom}}.Resolve()
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}
