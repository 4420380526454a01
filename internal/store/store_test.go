package store

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/item"
	_ "github.com/mattn/go-sqlite3"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	setupWriter, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open for migration: %v", err)
	}
	if err := Init(setupWriter); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	setupWriter.Close()

	s, err := Open(Options{
		DatabasePath: dbPath,
		BlobDir:      filepath.Join(dir, "blobs"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testUser(b byte) crypto.UserID {
	var u crypto.UserID
	u[0] = b
	return u
}

func testSig(b byte) crypto.Signature {
	var s crypto.Signature
	s[0] = b
	return s
}

func makeItem(ts int64, body string) *item.Item {
	raw := item.NewBuilder(ts, 0).WithPost(item.Post{Body: body}).Encode()
	it, err := item.ParseAndValidate(raw, item.ValidationConfig{})
	if err != nil {
		panic(err)
	}
	return it
}

func TestInsertAndGetItem(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid, sig := testUser(1), testSig(1)
	it := makeItem(1000, "hello")

	if err := s.InsertItem(ctx, uid, sig, it, 1000); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	raw, err := s.GetItem(ctx, uid, sig)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if string(raw) != string(it.Raw) {
		t.Fatal("round-tripped raw bytes differ")
	}

	if err := s.InsertItem(ctx, uid, sig, it, 1000); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetItem_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetItem(context.Background(), testUser(1), testSig(1))
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUserItems_Pagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid := testUser(2)

	for i := byte(1); i <= 5; i++ {
		it := makeItem(int64(i)*1000, "post")
		if err := s.InsertItem(ctx, uid, testSig(i), it, int64(i)*1000); err != nil {
			t.Fatalf("InsertItem %d: %v", i, err)
		}
	}

	page, err := s.ListUserItems(ctx, uid, Window{Limit: 2})
	if err != nil {
		t.Fatalf("ListUserItems: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page))
	}

	// Newest first: timestamp 5000 then 4000.
	if page[0].TimestampMsUTC != 5000 {
		t.Fatalf("expected newest-first ordering, got ts=%d", page[0].TimestampMsUTC)
	}

	next, err := s.ListUserItems(ctx, uid, Window{
		Before: &Cursor{TimestampMsUTC: 4000, Signature: testSig(4)},
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("ListUserItems page 2: %v", err)
	}
	if len(next) != 2 {
		t.Fatalf("expected 2 items on page 2, got %d", len(next))
	}
}

func TestKnownUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid := testUser(3)

	known, err := s.IsKnownUser(ctx, uid)
	if err != nil || known {
		t.Fatalf("expected unknown user, got known=%v err=%v", known, err)
	}

	quota := int64(1024)
	if err := s.AddKnownUser(ctx, uid, true, &quota, "test"); err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}

	known, err = s.IsKnownUser(ctx, uid)
	if err != nil || !known {
		t.Fatalf("expected known user, got known=%v err=%v", known, err)
	}

	q, ok, err := s.KnownUserQuota(ctx, uid)
	if err != nil || !ok || q != quota {
		t.Fatalf("KnownUserQuota: q=%d ok=%v err=%v", q, ok, err)
	}

	if err := s.RemoveKnownUser(ctx, uid); err != nil {
		t.Fatalf("RemoveKnownUser: %v", err)
	}
	known, _ = s.IsKnownUser(ctx, uid)
	if known {
		t.Fatal("expected user to be removed")
	}
}

func TestUploadAttachment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid, sig := testUser(4), testSig(4)

	data := []byte("attachment body bytes")
	h, err := crypto.HashBytes(data)
	if err != nil {
		t.Fatalf("HashBytes: %v", err)
	}

	raw := item.NewBuilder(1, 0).WithPost(item.Post{Body: "b", Attachments: []item.Attachment{
		{Name: "a.txt", SizeBytes: int64(len(data)), Hash: h},
	}}).Encode()
	it, err := item.ParseAndValidate(raw, item.ValidationConfig{})
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if err := s.InsertItem(ctx, uid, sig, it, 1); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	meta, err := s.GetFileMeta(ctx, uid, sig, "a.txt")
	if err != nil {
		t.Fatalf("GetFileMeta: %v", err)
	}
	if meta.Completed {
		t.Fatal("expected attachment not yet completed")
	}

	if err := s.UploadAttachment(ctx, uid, sig, "a.txt", int64(len(data)), bytes.NewReader(data)); err != nil {
		t.Fatalf("UploadAttachment: %v", err)
	}

	rc, size, err := s.OpenAttachment(ctx, uid, sig, "a.txt")
	if err != nil {
		t.Fatalf("OpenAttachment: %v", err)
	}
	defer rc.Close()
	if size != int64(len(data)) {
		t.Fatalf("expected size %d, got %d", len(data), size)
	}
}

func TestInsertItemAdmitted_ForbiddenUnknownUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid, sig := testUser(6), testSig(6)
	it := makeItem(1000, "hi")

	err := s.InsertItemAdmitted(ctx, uid, sig, it, 1000, 10, -1, false)
	if err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestInsertItemAdmitted_QuotaExceeded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid, sig := testUser(7), testSig(7)
	quota := int64(50)
	if err := s.AddKnownUser(ctx, uid, true, &quota, ""); err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}
	it := makeItem(1000, "this body is definitely longer than fifty bytes total")

	err := s.InsertItemAdmitted(ctx, uid, sig, it, 1000, 1000, -1, false)
	if err != ErrQuotaExceeded {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestInsertItemAdmitted_AllowedKnownUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid, sig := testUser(8), testSig(8)
	if err := s.AddKnownUser(ctx, uid, true, nil, ""); err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}
	it := makeItem(1000, "hi")

	if err := s.InsertItemAdmitted(ctx, uid, sig, it, 1000, 10, -1, false); err != nil {
		t.Fatalf("InsertItemAdmitted: %v", err)
	}

	raw, err := s.GetItem(ctx, uid, sig)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if string(raw) != string(it.Raw) {
		t.Fatal("round-tripped raw bytes differ")
	}

	if err := s.InsertItemAdmitted(ctx, uid, sig, it, 1000, 10, -1, false); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestInsertItemAdmitted_AllowedTransitiveFollow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid, sig := testUser(9), testSig(9)
	it := makeItem(1000, "hi")

	if err := s.InsertItemAdmitted(ctx, uid, sig, it, 1000, 10, -1, true); err != nil {
		t.Fatalf("InsertItemAdmitted: %v", err)
	}
}

func TestUploadAttachment_SizeMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	uid, sig := testUser(5), testSig(5)

	data := []byte("abc")
	h, _ := crypto.HashBytes(data)
	raw := item.NewBuilder(1, 0).WithPost(item.Post{Body: "b", Attachments: []item.Attachment{
		{Name: "a.txt", SizeBytes: int64(len(data)), Hash: h},
	}}).Encode()
	it, _ := item.ParseAndValidate(raw, item.ValidationConfig{})
	if err := s.InsertItem(ctx, uid, sig, it, 1); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	if err := s.UploadAttachment(ctx, uid, sig, "a.txt", 99, bytes.NewReader(data)); err != ErrAttachmentSizeMismatch {
		t.Fatalf("expected ErrAttachmentSizeMismatch, got %v", err)
	}
}
