// Package policy implements the authorization and quota decision: whether
// a given user is currently permitted to post an item, and whether doing
// so would exceed their storage budget.
package policy

import (
	"context"
	"fmt"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/feedcache"
	"github.com/diskuto/diskuto-api/internal/item"
	"github.com/diskuto/diskuto-api/internal/store"
)

// Decision is the outcome of MayAccept.
type Decision int

const (
	// Allow means the item may be admitted.
	Allow Decision = iota
	// Forbidden means user_id is neither a known user nor followed by one,
	// per the transitive admission rule.
	Forbidden
	// QuotaExceeded means user_id is admissible but the item (plus any
	// declared attachment bytes) would exceed its storage budget.
	QuotaExceeded
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Forbidden:
		return "forbidden"
	case QuotaExceeded:
		return "quota_exceeded"
	default:
		return "unknown"
	}
}

// Policy evaluates admission decisions against a Store and a follow-set
// cache. DefaultQuotaBytes is applied to users admitted only transitively
// (no KnownUser row of their own) and to known users whose row has no quota
// override.
type Policy struct {
	store             *store.Store
	follows           *feedcache.FollowCache
	DefaultQuotaBytes int64
}

// New constructs a Policy.
func New(s *store.Store, follows *feedcache.FollowCache, defaultQuotaBytes int64) *Policy {
	return &Policy{store: s, follows: follows, DefaultQuotaBytes: defaultQuotaBytes}
}

// MayAccept decides whether user_id may have item admitted. newBytes is the
// total size the item would add (its raw record plus any attachment bytes
// declared, not yet uploaded) used for the quota comparison.
//
// The admission check and the quota check both read through to the Store,
// which answers against whatever was most recently committed; callers that
// need the read to be consistent with a just-committed Profile must invoke
// MayAccept after their own insert transaction commits, not from inside it.
func (p *Policy) MayAccept(ctx context.Context, uid crypto.UserID, it *item.Item, newBytes int64) (Decision, error) {
	known, err := p.store.IsKnownUser(ctx, uid)
	if err != nil {
		return Forbidden, fmt.Errorf("check known user: %w", err)
	}

	if !known {
		admitted, err := p.follows.IsFollowedByKnownUser(ctx, uid)
		if err != nil {
			return Forbidden, fmt.Errorf("check transitive admission: %w", err)
		}
		if !admitted {
			return Forbidden, nil
		}
	}

	quota, err := p.quotaFor(ctx, uid, known)
	if err != nil {
		return Forbidden, err
	}
	if quota < 0 {
		// Unlimited quota: no further check needed.
		return Allow, nil
	}

	used, err := p.store.TotalBytes(ctx, uid)
	if err != nil {
		return Forbidden, fmt.Errorf("read total bytes: %w", err)
	}
	if used+newBytes > quota {
		return QuotaExceeded, nil
	}
	return Allow, nil
}

// quotaFor resolves the effective quota for uid: its own KnownUser override
// if set, else the server-wide default. A negative return means unlimited.
func (p *Policy) quotaFor(ctx context.Context, uid crypto.UserID, known bool) (int64, error) {
	if known {
		q, ok, err := p.store.KnownUserQuota(ctx, uid)
		if err != nil {
			return 0, fmt.Errorf("read known user quota: %w", err)
		}
		if ok {
			return q, nil
		}
	}
	return p.DefaultQuotaBytes, nil
}
