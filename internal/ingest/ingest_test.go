package ingest

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/feedcache"
	"github.com/diskuto/diskuto-api/internal/item"
	"github.com/diskuto/diskuto-api/internal/policy"
	"github.com/diskuto/diskuto-api/internal/store"
)

func newTestService(t *testing.T) (*Service, crypto.UserID, ed25519.PrivateKey) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	setup, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open for migration: %v", err)
	}
	if err := store.Init(setup); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	setup.Close()

	st, err := store.Open(store.Options{DatabasePath: dbPath, BlobDir: filepath.Join(dir, "blobs")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	follows, err := feedcache.New(st, 16)
	if err != nil {
		t.Fatalf("feedcache.New: %v", err)
	}
	pol := policy.New(st, follows, -1)

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var uid crypto.UserID
	copy(uid[:], pub)

	if err := st.AddKnownUser(context.Background(), uid, true, nil, ""); err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}

	svc := &Service{
		Store:   st,
		Policy:  pol,
		Follows: follows,
		Now:     func() int64 { return 1 },
	}
	return svc, uid, priv
}

func TestPutItem_CreatedThenIdempotent(t *testing.T) {
	svc, uid, priv := newTestService(t)
	ctx := context.Background()

	raw := item.NewBuilder(1, 0).WithPost(item.Post{Body: "hello"}).Encode()
	sigBytes := ed25519.Sign(priv, raw)
	var sig crypto.Signature
	copy(sig[:], sigBytes)

	outcome, err := svc.PutItem(ctx, uid, sig, raw)
	if err != nil {
		t.Fatalf("PutItem: %v", err)
	}
	if outcome != Created {
		t.Fatalf("expected Created, got %v", outcome)
	}

	outcome, err = svc.PutItem(ctx, uid, sig, raw)
	if err != nil {
		t.Fatalf("PutItem (repeat): %v", err)
	}
	if outcome != AlreadyPresent {
		t.Fatalf("expected AlreadyPresent, got %v", outcome)
	}
}

func TestPutItem_BadSignature(t *testing.T) {
	svc, uid, priv := newTestService(t)
	ctx := context.Background()

	raw := item.NewBuilder(1, 0).WithPost(item.Post{Body: "hello"}).Encode()
	sigBytes := ed25519.Sign(priv, raw)
	raw[len(raw)-1] ^= 0xFF // tamper after signing
	var sig crypto.Signature
	copy(sig[:], sigBytes)

	_, err := svc.PutItem(ctx, uid, sig, raw)
	var rej *Rejection
	if !errors.As(err, &rej) || rej.Code != CodeMalformed {
		t.Fatalf("expected CodeMalformed rejection, got %v", err)
	}
}

func TestPutAttachment_FullCycle(t *testing.T) {
	svc, uid, priv := newTestService(t)
	ctx := context.Background()

	data := []byte("attachment contents")
	h, err := crypto.HashBytes(data)
	if err != nil {
		t.Fatalf("HashBytes: %v", err)
	}

	raw := item.NewBuilder(1, 0).WithPost(item.Post{Body: "b", Attachments: []item.Attachment{
		{Name: "a.bin", SizeBytes: int64(len(data)), Hash: h},
	}}).Encode()
	sigBytes := ed25519.Sign(priv, raw)
	var sig crypto.Signature
	copy(sig[:], sigBytes)

	if _, err := svc.PutItem(ctx, uid, sig, raw); err != nil {
		t.Fatalf("PutItem: %v", err)
	}

	outcome, err := svc.PutAttachment(ctx, uid, sig, "a.bin", int64(len(data)), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("PutAttachment: %v", err)
	}
	if outcome != Created {
		t.Fatalf("expected Created, got %v", outcome)
	}

	outcome, err = svc.PutAttachment(ctx, uid, sig, "a.bin", int64(len(data)), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("PutAttachment (repeat): %v", err)
	}
	if outcome != AlreadyPresent {
		t.Fatalf("expected AlreadyPresent, got %v", outcome)
	}
}
