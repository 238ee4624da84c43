package escrow

import (
	"crypto/rand"
	"testing"
)

type fakeStore struct {
	records map[string]*SealedRecord
}

func (f *fakeStore) SealedRecord(tradingWalletID string) (*SealedRecord, error) {
	return f.records[tradingWalletID], nil
}

func testMasterKey(t *testing.T) [32]byte {
	t.Helper()
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("generating master key: %v", err)
	}
	return key
}

func TestSealThenPrivateKeyBytesRoundTrips(t *testing.T) {
	masterKey := testMasterKey(t)
	keyBytes := make([]byte, PrivateKeySize)
	rand.Read(keyBytes)

	record, err := Seal(masterKey, keyBytes)
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}

	store := &fakeStore{records: map[string]*SealedRecord{"wallet-1": record}}
	e, err := NewLocalEscrow(store, masterKey[:])
	if err != nil {
		t.Fatalf("constructing escrow: %v", err)
	}

	decrypted, err := e.PrivateKeyBytes("wallet-1")
	if err != nil {
		t.Fatalf("decrypting: %v", err)
	}
	if len(decrypted) != PrivateKeySize {
		t.Fatalf("expected %d bytes, got %d", PrivateKeySize, len(decrypted))
	}
	for i := range keyBytes {
		if decrypted[i] != keyBytes[i] {
			t.Fatalf("decrypted key does not match original at byte %d", i)
		}
	}
}

func TestPrivateKeyBytesFailsWithWrongMasterKey(t *testing.T) {
	correctKey := testMasterKey(t)
	wrongKey := testMasterKey(t)
	keyBytes := make([]byte, PrivateKeySize)
	rand.Read(keyBytes)

	record, err := Seal(correctKey, keyBytes)
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}

	store := &fakeStore{records: map[string]*SealedRecord{"wallet-1": record}}
	e, err := NewLocalEscrow(store, wrongKey[:])
	if err != nil {
		t.Fatalf("constructing escrow: %v", err)
	}

	if _, err := e.PrivateKeyBytes("wallet-1"); err == nil {
		t.Fatal("expected decryption to fail with the wrong master key")
	}
}

func TestPrivateKeyBytesFailsForUnknownWallet(t *testing.T) {
	masterKey := testMasterKey(t)
	store := &fakeStore{records: map[string]*SealedRecord{}}
	e, err := NewLocalEscrow(store, masterKey[:])
	if err != nil {
		t.Fatalf("constructing escrow: %v", err)
	}

	if _, err := e.PrivateKeyBytes("missing-wallet"); err == nil {
		t.Fatal("expected an error for an unregistered trading wallet")
	}
}

func TestNewLocalEscrowRejectsWrongKeyLength(t *testing.T) {
	if _, err := NewLocalEscrow(&fakeStore{}, []byte("too-short")); err == nil {
		t.Fatal("expected an error for a non-32-byte master key")
	}
}
