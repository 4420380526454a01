// Package feed implements the read-side query service: windowed, paginated
// listings over homepage, per-user, follows, and reply-thread scopes, each
// returned as a lightweight ItemList envelope of references rather than
// full item bodies, keeping feed payloads bounded and cache-friendly.
package feed

import (
	"context"
	"fmt"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/feedcache"
	"github.com/diskuto/diskuto-api/internal/item"
	"github.com/diskuto/diskuto-api/internal/store"
)

// Ref is one entry of an ItemList: enough to identify and re-fetch an item,
// plus the timestamp feeds sort on.
type Ref struct {
	UserID         crypto.UserID
	Signature      crypto.Signature
	TimestampMsUTC int64
}

// ItemList is the envelope every feed endpoint returns.
type ItemList struct {
	Items []Ref
}

// Service answers feed queries by reading through to a Store and resolving
// follow sets via a FollowCache.
type Service struct {
	store   *store.Store
	follows *feedcache.FollowCache
}

// New constructs a feed Service.
func New(s *store.Store, follows *feedcache.FollowCache) *Service {
	return &Service{store: s, follows: follows}
}

// Homepage lists items from on_homepage-flagged known users, newest first
// within w (or oldest-first for an After-only window; see store.Window).
func (s *Service) Homepage(ctx context.Context, w store.Window) (ItemList, error) {
	rows, err := s.store.ListHomepage(ctx, w)
	if err != nil {
		return ItemList{}, fmt.Errorf("list homepage: %w", err)
	}
	return toItemList(rows)
}

// UserItems lists uid's own items within w.
func (s *Service) UserItems(ctx context.Context, uid crypto.UserID, w store.Window) (ItemList, error) {
	rows, err := s.store.ListUserItems(ctx, uid, w)
	if err != nil {
		return ItemList{}, fmt.Errorf("list user items: %w", err)
	}
	return toItemList(rows)
}

// Feed lists uid's own items unioned with the items of every UserID uid's
// latest Profile follows, sourced from the latest Profile item at query
// time. A newer Profile takes effect immediately on ingestion because
// FollowsOf always reflects the currently-cached (or freshly recomputed)
// follow set.
func (s *Service) Feed(ctx context.Context, uid crypto.UserID, w store.Window) (ItemList, error) {
	follows, err := s.follows.FollowsOf(ctx, uid)
	if err != nil {
		return ItemList{}, fmt.Errorf("resolve follows: %w", err)
	}
	authors := make([]crypto.UserID, 0, len(follows)+1)
	authors = append(authors, uid)
	for f := range follows {
		authors = append(authors, f)
	}
	rows, err := s.store.ListItemsForUsers(ctx, authors, w)
	if err != nil {
		return ItemList{}, fmt.Errorf("list feed: %w", err)
	}
	return toItemList(rows)
}

// Replies lists comments whose reply_to points at (uid, sig), oldest first
// (thread order).
func (s *Service) Replies(ctx context.Context, uid crypto.UserID, sig crypto.Signature, w store.Window) (ItemList, error) {
	rows, err := s.store.ListReplies(ctx, uid, sig, w)
	if err != nil {
		return ItemList{}, fmt.Errorf("list replies: %w", err)
	}
	return toItemList(rows)
}

// Profile returns uid's latest Profile item, raw bytes and true, or false
// if uid has never posted one.
func (s *Service) Profile(ctx context.Context, uid crypto.UserID) ([]byte, bool, error) {
	raw, err := s.store.LatestProfileRaw(ctx, uid)
	if err == store.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest profile: %w", err)
	}
	return raw, true, nil
}

// Item fetches a single stored item's raw bytes.
func (s *Service) Item(ctx context.Context, uid crypto.UserID, sig crypto.Signature) ([]byte, bool, error) {
	raw, err := s.store.GetItem(ctx, uid, sig)
	if err == store.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get item: %w", err)
	}
	return raw, true, nil
}

// toItemList builds Refs from stored rows, skipping any whose kind this
// codec version doesn't recognize, per the Open Question decision that
// unknown-kind items are stored but excluded from feed projections.
func toItemList(rows []store.Row) (ItemList, error) {
	list := ItemList{Items: make([]Ref, 0, len(rows))}
	for _, r := range rows {
		it, err := item.ParseAndValidate(r.Raw, item.ValidationConfig{})
		if err != nil {
			continue
		}
		if it.Kind == item.KindUnknown {
			continue
		}
		list.Items = append(list.Items, Ref{
			UserID:         r.UserID,
			Signature:      r.Signature,
			TimestampMsUTC: r.TimestampMsUTC,
		})
	}
	return list, nil
}
