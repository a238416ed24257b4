package keystore

import (
	"errors"
	"path/filepath"
	"testing"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestEncryptDecryptKey(t *testing.T) {
	password := "secure-password"
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	// 1. Encrypt
	keyJSON, err := Encrypt(key, password, true)
	if err != nil {
		t.Fatalf("Encryption failed: %v", err)
	}

	// 2. Decrypt with correct password
	got, err := Decrypt(keyJSON, password)
	if err != nil {
		t.Fatalf("Decryption failed: %v", err)
	}
	if got.D.Cmp(key.D) != 0 {
		t.Errorf("Decryption mismatch")
	}

	// 3. Decrypt with wrong password
	if _, err = Decrypt(keyJSON, "wrong-password"); !errors.Is(err, gethkeystore.ErrDecrypt) {
		t.Errorf("Expected ErrDecrypt with wrong password, got %v", err)
	}
}

func TestNewKeyFileAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payout.json")

	addr, err := NewKeyFile(path, "123456", true)
	if err != nil {
		t.Fatalf("NewKeyFile failed: %v", err)
	}
	if _, err := NewKeyFile(path, "123456", true); err == nil {
		t.Error("Expected error when keystore file already exists")
	}

	key, err := LoadPayoutKey(path, "123456", "")
	if err != nil {
		t.Fatalf("LoadPayoutKey failed: %v", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey) != addr {
		t.Errorf("Address mismatch")
	}
}

func TestLoadPayoutKeyFallsBackToHex(t *testing.T) {
	const hexKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	key, err := LoadPayoutKey(filepath.Join(t.TempDir(), "missing.json"), "", hexKey)
	if err != nil {
		t.Fatalf("LoadPayoutKey failed: %v", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey).Hex() != "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23" {
		t.Errorf("unexpected address %s", crypto.PubkeyToAddress(key.PublicKey).Hex())
	}

	if _, err := LoadPayoutKey("", "", ""); !errors.Is(err, ErrNoKey) {
		t.Errorf("Expected ErrNoKey, got %v", err)
	}
}
