package security

import (
	"testing"
)

func TestTokenStoreRoundTrip(t *testing.T) {
	ts := NewTokenStore(t.TempDir())

	if err := ts.Save("access-token-xyz", "master-pass"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	token, err := ts.Load("master-pass")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if token != "access-token-xyz" {
		t.Errorf("token = %q, want access-token-xyz", token)
	}
}

func TestTokenStoreWrongPassphrase(t *testing.T) {
	ts := NewTokenStore(t.TempDir())

	if err := ts.Save("access-token-xyz", "master-pass"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := ts.Load("wrong-pass"); err == nil {
		t.Error("Load succeeded with wrong passphrase")
	}
}

func TestTokenStoreMissingFile(t *testing.T) {
	ts := NewTokenStore(t.TempDir())

	if _, err := ts.Load("any"); err == nil {
		t.Error("Load succeeded with no stored token")
	}
}

func TestTokenStoreDelete(t *testing.T) {
	ts := NewTokenStore(t.TempDir())

	if err := ts.Save("tok", "pass"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := ts.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := ts.Load("pass"); err == nil {
		t.Error("Load succeeded after delete")
	}

	// Deleting again is fine
	if err := ts.Delete(); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := deriveKey("passphrase", []byte("0123456789abcdef"))

	nonce, ciphertext, err := encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	plaintext, err := decrypt(ciphertext, key, nonce)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(plaintext) != "payload" {
		t.Errorf("plaintext = %q, want payload", plaintext)
	}

	// Tampered ciphertext fails authentication
	ciphertext[0] ^= 0xff
	if _, err := decrypt(ciphertext, key, nonce); err == nil {
		t.Error("decrypt succeeded on tampered ciphertext")
	}
}
