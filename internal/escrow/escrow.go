// Package escrow implements the Key Escrow client: it decrypts a trading
// wallet's private key bytes on demand and never caches
// the plaintext. Sealed key material is encrypted at rest with NaCl
// secretbox (XSalsa20-Poly1305), the same authenticated-encryption family
// this repository's dependency corpus already reaches for on peer-to-peer
// payloads (golang.org/x/crypto/nacl), adapted here to single-key
// encryption at rest instead of peer exchange.
package escrow

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// PrivateKeySize is the length in bytes of a decrypted ed25519 keypair:
// a 32-byte seed plus a 32-byte public key.
const PrivateKeySize = 64

// KeyEscrow decrypts trading-wallet private key bytes on demand. Callers
// must not persist the returned slice beyond the immediate signing
// operation.
type KeyEscrow interface {
	PrivateKeyBytes(tradingWalletID string) ([]byte, error)
}

// SealedRecord is one trading wallet's encrypted-at-rest key material, as
// stored by whatever persistence layer backs the escrow, opaque to the
// rest of the daemon.
type SealedRecord struct {
	Nonce      [24]byte
	Ciphertext []byte
}

// Store resolves a trading wallet ID to its sealed record. Implementations
// typically back this with the same Postgres instance as the Strategy
// Store, in a table the core never reads directly.
type Store interface {
	SealedRecord(tradingWalletID string) (*SealedRecord, error)
}

// LocalEscrow decrypts records from Store using a single master key held
// in process memory, loaded once at startup from the process environment.
type LocalEscrow struct {
	store     Store
	masterKey [32]byte
}

// NewLocalEscrow builds a LocalEscrow with masterKey, a 32-byte secretbox
// key. Returns an error if masterKey is the wrong length rather than
// silently truncating or padding it.
func NewLocalEscrow(store Store, masterKey []byte) (*LocalEscrow, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("escrow: master key must be 32 bytes, got %d", len(masterKey))
	}
	e := &LocalEscrow{store: store}
	copy(e.masterKey[:], masterKey)
	return e, nil
}

// PrivateKeyBytes decrypts and returns the trading wallet's keypair bytes.
// The plaintext is never cached on the KeyEscrow side; each call re-reads
// the sealed record and re-decrypts it.
func (e *LocalEscrow) PrivateKeyBytes(tradingWalletID string) ([]byte, error) {
	record, err := e.store.SealedRecord(tradingWalletID)
	if err != nil {
		return nil, fmt.Errorf("escrow: loading sealed record for %s: %w", tradingWalletID, err)
	}
	if record == nil {
		return nil, fmt.Errorf("escrow: no key material registered for trading wallet %s", tradingWalletID)
	}

	plaintext, ok := secretbox.Open(nil, record.Ciphertext, &record.Nonce, &e.masterKey)
	if !ok {
		return nil, fmt.Errorf("escrow: decryption failed for trading wallet %s (wrong master key or corrupted record)", tradingWalletID)
	}
	if len(plaintext) != PrivateKeySize {
		return nil, fmt.Errorf("escrow: decrypted key for %s has length %d, expected %d", tradingWalletID, len(plaintext), PrivateKeySize)
	}
	return plaintext, nil
}

// Seal encrypts keyBytes (PrivateKeySize bytes) under masterKey, producing
// a SealedRecord suitable for storage. Used by wallet-provisioning tooling,
// never by the daemon's own runtime path.
func Seal(masterKey [32]byte, keyBytes []byte) (*SealedRecord, error) {
	if len(keyBytes) != PrivateKeySize {
		return nil, fmt.Errorf("escrow: key to seal must be %d bytes, got %d", PrivateKeySize, len(keyBytes))
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("escrow: generating nonce: %w", err)
	}
	ciphertext := secretbox.Seal(nil, keyBytes, &nonce, &masterKey)
	return &SealedRecord{Nonce: nonce, Ciphertext: ciphertext}, nil
}
