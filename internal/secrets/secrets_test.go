package secrets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "secrets.json"), filepath.Join(dir, "master.key")), dir
}

func TestRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	key, err := store.GetOpenAIKey()
	if err != nil {
		t.Fatalf("get on empty store: %v", err)
	}
	if key != "" {
		t.Fatalf("key = %q, want empty", key)
	}

	if err := store.SetOpenAIKey("sk-test-123"); err != nil {
		t.Fatalf("set: %v", err)
	}
	key, err = store.GetOpenAIKey()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if key != "sk-test-123" {
		t.Fatalf("key = %q", key)
	}

	if err := store.ClearOpenAIKey(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	key, err = store.GetOpenAIKey()
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if key != "" {
		t.Fatalf("key = %q, want empty after clear", key)
	}
}

func TestSecretsFileIsEncrypted(t *testing.T) {
	store, dir := newTestStore(t)
	if err := store.SetOpenAIKey("sk-plaintext-canary"); err != nil {
		t.Fatalf("set: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "secrets.json"))
	if err != nil {
		t.Fatalf("read secrets file: %v", err)
	}
	if strings.Contains(string(data), "sk-plaintext-canary") {
		t.Fatal("secret stored in plaintext")
	}
	var payload struct {
		Nonce      string `json:"nonce"`
		Ciphertext string `json:"ciphertext"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if payload.Nonce == "" || payload.Ciphertext == "" {
		t.Fatalf("envelope = %+v", payload)
	}
}

func TestMasterKeyReuse(t *testing.T) {
	store, dir := newTestStore(t)
	if err := store.SetOpenAIKey("sk-first"); err != nil {
		t.Fatalf("set: %v", err)
	}

	// A new store over the same paths decrypts with the existing key.
	again := NewStore(filepath.Join(dir, "secrets.json"), filepath.Join(dir, "master.key"))
	key, err := again.GetOpenAIKey()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if key != "sk-first" {
		t.Fatalf("key = %q", key)
	}
}

func TestRejectsTruncatedMasterKey(t *testing.T) {
	store, dir := newTestStore(t)
	if err := os.WriteFile(filepath.Join(dir, "master.key"), []byte("short"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := store.SetOpenAIKey("sk-x"); err == nil {
		t.Fatal("expected invalid master key error")
	}
}
