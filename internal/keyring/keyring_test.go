package keyring_test

import (
	"testing"

	"github.com/skaphos/mirrorkeeper/internal/keyring"
)

func TestEnvVarNameSanitizes(t *testing.T) {
	got := keyring.EnvVarName("github.com/acme-org")
	want := "MIRRORKEEPER_TOKEN_GITHUB_COM_ACME_ORG"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEnvStoreLookupPrefersTargetSpecific(t *testing.T) {
	env := map[string]string{
		keyring.EnvVarName("target-a"): "specific-token",
		"MIRRORKEEPER_TOKEN":           "fallback-token",
	}
	store := &keyring.EnvStore{Lookup_: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}
	creds, err := store.Lookup("target-a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if creds.Token != "specific-token" {
		t.Fatalf("expected specific token, got %q", creds.Token)
	}
}

func TestEnvStoreLookupFallsBackToShared(t *testing.T) {
	env := map[string]string{"MIRRORKEEPER_TOKEN": "fallback-token"}
	store := &keyring.EnvStore{Lookup_: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}
	creds, err := store.Lookup("target-b")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if creds.Token != "fallback-token" {
		t.Fatalf("expected fallback token, got %q", creds.Token)
	}
}

func TestEnvStoreLookupMissing(t *testing.T) {
	store := &keyring.EnvStore{Lookup_: func(string) (string, bool) { return "", false }}
	if _, err := store.Lookup("target-c"); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestStaticStore(t *testing.T) {
	store := &keyring.StaticStore{}
	if _, err := store.Lookup("missing"); err == nil {
		t.Fatal("expected error for missing target")
	}
}
