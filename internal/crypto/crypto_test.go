package crypto

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestParseUserID_RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	var id UserID
	copy(id[:], pub)

	text := id.String()
	got, err := ParseUserID(text)
	if err != nil {
		t.Fatalf("ParseUserID: %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch: got %x want %x", got, id)
	}
}

func TestParseUserID_WrongLength(t *testing.T) {
	if _, err := ParseUserID("2NEpo7TZRRrLZSi2U"); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	var id UserID
	copy(id[:], pub)

	msg := []byte("hello diskuto")
	rawSig := ed25519.Sign(priv, msg)
	var sig Signature
	copy(sig[:], rawSig)

	if !Verify(id, sig, msg) {
		t.Fatal("expected signature to verify")
	}
	if Verify(id, sig, []byte("tampered")) {
		t.Fatal("expected signature to fail over different bytes")
	}
}

func TestHashStream_RoundTrip(t *testing.T) {
	data := []byte("attachment bytes")
	mh1, err := HashStream(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	mh2, err := HashBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if !mh1.Equal(mh2) {
		t.Fatalf("HashStream and HashBytes diverged: %x vs %x", mh1, mh2)
	}
	parsed, err := ParseMultihash(mh1)
	if err != nil {
		t.Fatalf("ParseMultihash: %v", err)
	}
	if !parsed.Equal(mh1) {
		t.Fatal("parsed multihash does not equal original")
	}
}
