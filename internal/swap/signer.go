package swap

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// LocalSigner signs a base64-encoded unsigned transaction with an in-memory
// ed25519 keypair. No library in the example corpus provides chain-specific
// transaction signing, so this implementation uses crypto/ed25519 directly
// (see DESIGN.md's stdlib-fallback justification for internal/swap).
//
// The transaction wire format here is intentionally minimal: the unsigned
// payload is treated as the exact byte sequence requiring a single
// signature, which is prepended to produce the signed payload. A production
// deployment would replace this with full transaction-message parsing.
type LocalSigner struct{}

// Sign decodes unsignedB64, signs its bytes with keypair (a 64-byte
// ed25519 private key as returned by Key Escrow), and returns the
// signature-prefixed payload re-encoded as base64.
func (LocalSigner) Sign(ctx context.Context, unsignedB64 string, keypair []byte) (string, error) {
	if len(keypair) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("signer: expected a %d-byte ed25519 private key, got %d bytes", ed25519.PrivateKeySize, len(keypair))
	}

	payload, err := base64.StdEncoding.DecodeString(unsignedB64)
	if err != nil {
		return "", fmt.Errorf("signer: decoding unsigned transaction: %w", err)
	}

	priv := ed25519.PrivateKey(keypair)
	sig := ed25519.Sign(priv, payload)

	signed := make([]byte, 0, len(sig)+len(payload))
	signed = append(signed, sig...)
	signed = append(signed, payload...)

	return base64.StdEncoding.EncodeToString(signed), nil
}
