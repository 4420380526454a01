package feed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/feedcache"
	"github.com/diskuto/diskuto-api/internal/item"
	"github.com/diskuto/diskuto-api/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
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

	s, err := store.Open(store.Options{DatabasePath: dbPath, BlobDir: filepath.Join(dir, "blobs")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func userWith(b byte) crypto.UserID {
	var u crypto.UserID
	u[0] = b
	return u
}

func sigWith(b byte) crypto.Signature {
	var s crypto.Signature
	s[0] = b
	return s
}

func insertPost(t *testing.T, s *store.Store, uid crypto.UserID, sig crypto.Signature, ts int64, body string) {
	t.Helper()
	raw := item.NewBuilder(ts, 0).WithPost(item.Post{Body: body}).Encode()
	it, err := item.ParseAndValidate(raw, item.ValidationConfig{})
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if err := s.InsertItem(context.Background(), uid, sig, it, ts); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
}

func TestFeed_SelfUnionFollows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := userWith(1), userWith(2)

	insertPost(t, s, a, sigWith(1), 100, "a1")
	insertPost(t, s, b, sigWith(2), 200, "b1")

	profileRaw := item.NewBuilder(300, 0).WithProfile(item.Profile{
		DisplayName: "A",
		Follows:     []item.FollowEntry{{UserID: b}},
	}).Encode()
	profile, err := item.ParseAndValidate(profileRaw, item.ValidationConfig{})
	if err != nil {
		t.Fatalf("ParseAndValidate profile: %v", err)
	}
	if err := s.InsertItem(ctx, a, sigWith(3), profile, 300); err != nil {
		t.Fatalf("InsertItem profile: %v", err)
	}

	follows, err := feedcache.New(s, 16)
	if err != nil {
		t.Fatalf("feedcache.New: %v", err)
	}
	svc := New(s, follows)

	list, err := svc.Feed(ctx, a, store.Window{Limit: 10})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	// a's own post, b's post (followed), and a's own Profile: 3 refs total.
	if len(list.Items) != 3 {
		t.Fatalf("expected 3 feed items, got %d", len(list.Items))
	}
}

func TestHomepage_OnlyFlaggedUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := userWith(1), userWith(2)

	if err := s.AddKnownUser(ctx, a, true, nil, ""); err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}
	if err := s.AddKnownUser(ctx, b, false, nil, ""); err != nil {
		t.Fatalf("AddKnownUser: %v", err)
	}

	insertPost(t, s, a, sigWith(1), 100, "on homepage")
	insertPost(t, s, b, sigWith(2), 200, "not on homepage")

	follows, err := feedcache.New(s, 16)
	if err != nil {
		t.Fatalf("feedcache.New: %v", err)
	}
	svc := New(s, follows)

	list, err := svc.Homepage(ctx, store.Window{Limit: 10})
	if err != nil {
		t.Fatalf("Homepage: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].UserID != a {
		t.Fatalf("expected exactly a's item, got %+v", list.Items)
	}
}

func TestReplies_ThreadOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	author, commenter := userWith(1), userWith(2)

	insertPost(t, s, author, sigWith(1), 100, "root")

	for i, ts := range []int64{300, 200} {
		raw := item.NewBuilder(ts, 0).WithComment(item.Comment{
			ReplyTo: item.ReplyTo{UserID: author, Signature: sigWith(1)},
			Body:    "reply",
		}).Encode()
		it, err := item.ParseAndValidate(raw, item.ValidationConfig{})
		if err != nil {
			t.Fatalf("ParseAndValidate comment: %v", err)
		}
		if err := s.InsertItem(ctx, commenter, sigWith(byte(10+i)), it, ts); err != nil {
			t.Fatalf("InsertItem comment: %v", err)
		}
	}

	follows, err := feedcache.New(s, 16)
	if err != nil {
		t.Fatalf("feedcache.New: %v", err)
	}
	svc := New(s, follows)

	list, err := svc.Replies(ctx, author, sigWith(1), store.Window{Limit: 10})
	if err != nil {
		t.Fatalf("Replies: %v", err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(list.Items))
	}
	if list.Items[0].TimestampMsUTC != 200 || list.Items[1].TimestampMsUTC != 300 {
		t.Fatalf("expected chronological order, got %+v", list.Items)
	}
}
