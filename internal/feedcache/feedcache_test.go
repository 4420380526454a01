package feedcache

import (
	"context"
	"testing"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/item"
	"github.com/diskuto/diskuto-api/internal/store"
)

type fakeSource struct {
	profiles   map[crypto.UserID][]byte
	knownUsers []store.KnownUser
	calls      int
}

func (f *fakeSource) LatestProfileRaw(_ context.Context, uid crypto.UserID) ([]byte, error) {
	f.calls++
	raw, ok := f.profiles[uid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return raw, nil
}

func (f *fakeSource) ListKnownUsers(_ context.Context) ([]store.KnownUser, error) {
	return f.knownUsers, nil
}

func userWith(b byte) crypto.UserID {
	var u crypto.UserID
	u[0] = b
	return u
}

func profileRaw(follows ...crypto.UserID) []byte {
	entries := make([]item.FollowEntry, len(follows))
	for i, u := range follows {
		entries[i] = item.FollowEntry{UserID: u}
	}
	return item.NewBuilder(1, 0).WithProfile(item.Profile{DisplayName: "x", Follows: entries}).Encode()
}

func TestIsFollowedByKnownUser(t *testing.T) {
	known := userWith(1)
	target := userWith(2)

	src := &fakeSource{
		profiles:   map[crypto.UserID][]byte{known: profileRaw(target)},
		knownUsers: []store.KnownUser{{UserID: known}},
	}
	cache, err := New(src, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ok, err := cache.IsFollowedByKnownUser(context.Background(), target)
	if err != nil {
		t.Fatalf("IsFollowedByKnownUser: %v", err)
	}
	if !ok {
		t.Fatal("expected target to be followed")
	}

	stranger := userWith(3)
	ok, err = cache.IsFollowedByKnownUser(context.Background(), stranger)
	if err != nil {
		t.Fatalf("IsFollowedByKnownUser: %v", err)
	}
	if ok {
		t.Fatal("expected stranger not to be followed")
	}
}

func TestFollowCache_InvalidateOnNewProfile(t *testing.T) {
	known := userWith(1)
	target := userWith(2)

	src := &fakeSource{profiles: map[crypto.UserID][]byte{known: profileRaw(target)}}
	cache, err := New(src, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	set, err := cache.FollowsOf(context.Background(), known)
	if err != nil {
		t.Fatalf("FollowsOf: %v", err)
	}
	if _, ok := set[target]; !ok {
		t.Fatal("expected target in initial follow set")
	}

	// A new Profile drops target from the follows list.
	src.profiles[known] = profileRaw()
	cache.Invalidate(known)

	set, err = cache.FollowsOf(context.Background(), known)
	if err != nil {
		t.Fatalf("FollowsOf after invalidate: %v", err)
	}
	if _, ok := set[target]; ok {
		t.Fatal("expected target to be gone after invalidation")
	}
}
