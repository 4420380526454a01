// Package feedcache caches the follow set implied by each known user's
// latest Profile item, the lookup the transitive-admission rule and the
// feed-of-follows query both need on every request. It is an LRU of
// frequently-read derived state, invalidated on the write that changes it.
package feedcache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/item"
	"github.com/diskuto/diskuto-api/internal/store"
)

// profileSource is the subset of *store.Store this package depends on,
// narrowed to ease testing with a fake.
type profileSource interface {
	LatestProfileRaw(ctx context.Context, uid crypto.UserID) ([]byte, error)
	ListKnownUsers(ctx context.Context) ([]store.KnownUser, error)
}

// FollowCache caches, per author, the set of UserIDs their latest Profile
// follows. A new Profile from the same author invalidates only that
// author's entry; a new Profile from that author invalidates the cached
// follow set on ingest.
type FollowCache struct {
	store profileSource
	cache *lru.Cache[crypto.UserID, map[crypto.UserID]struct{}]
}

// New constructs a FollowCache holding up to size authors' follow sets.
func New(s profileSource, size int) (*FollowCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[crypto.UserID, map[crypto.UserID]struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create follow cache: %w", err)
	}
	return &FollowCache{store: s, cache: c}, nil
}

// Invalidate drops a cached follow set, called by internal/ingest right
// after a Profile item from uid commits.
func (f *FollowCache) Invalidate(uid crypto.UserID) {
	f.cache.Remove(uid)
}

// FollowsOf returns the UserID set author's latest Profile follows,
// computing and caching it on a miss.
func (f *FollowCache) FollowsOf(ctx context.Context, author crypto.UserID) (map[crypto.UserID]struct{}, error) {
	if set, ok := f.cache.Get(author); ok {
		return set, nil
	}

	raw, err := f.store.LatestProfileRaw(ctx, author)
	if err == store.ErrNotFound {
		empty := map[crypto.UserID]struct{}{}
		f.cache.Add(author, empty)
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest profile: %w", err)
	}

	it, err := item.ParseAndValidate(raw, item.ValidationConfig{})
	if err != nil {
		return nil, fmt.Errorf("parse cached profile: %w", err)
	}

	set := make(map[crypto.UserID]struct{}, len(it.Profile.Follows))
	for _, entry := range it.Profile.Follows {
		set[entry.UserID] = struct{}{}
	}
	f.cache.Add(author, set)
	return set, nil
}

// IsFollowedByKnownUser reports whether any currently-known user's latest
// Profile follows uid, the transitive admission test.
func (f *FollowCache) IsFollowedByKnownUser(ctx context.Context, uid crypto.UserID) (bool, error) {
	knownUsers, err := f.store.ListKnownUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("list known users: %w", err)
	}
	for _, ku := range knownUsers {
		follows, err := f.FollowsOf(ctx, ku.UserID)
		if err != nil {
			return false, err
		}
		if _, ok := follows[uid]; ok {
			return true, nil
		}
	}
	return false, nil
}
