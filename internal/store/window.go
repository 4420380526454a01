package store

import "github.com/diskuto/diskuto-api/internal/crypto"

// Cursor identifies a position in a feed ordered by (timestamp_ms_utc,
// signature) descending, a deterministic tie-break so a page boundary
// never depends on SQLite's unspecified row order for equal timestamps.
type Cursor struct {
	TimestampMsUTC int64
	Signature      crypto.Signature
}

// Window describes one page request: an optional exclusive "before" bound
// (strictly older than Before), an optional exclusive "after" bound
// (strictly newer than After), and a result-count Limit. Both may be set at
// once (a strict open interval); the presence of Before always selects
// DESC (newest-first) order, and After alone selects ASC (oldest-first,
// for polling since a previously-seen cursor). The httpapi layer returns
// an After-only page in that ascending order.
type Window struct {
	Before *Cursor
	After  *Cursor
	Limit  int
}

// clause renders the window's WHERE fragment and its bound args, plus the
// ORDER BY/LIMIT direction appropriate to the window's ordering contract.
func (w Window) clause(column, sigColumn string) (where string, args []any, orderDesc bool) {
	var conds []string

	if w.Before != nil {
		conds = append(conds, "("+column+" < ? OR ("+column+" = ? AND "+sigColumn+" < ?))")
		args = append(args, w.Before.TimestampMsUTC, w.Before.TimestampMsUTC, w.Before.Signature.Bytes())
	}
	if w.After != nil {
		conds = append(conds, "("+column+" > ? OR ("+column+" = ? AND "+sigColumn+" > ?))")
		args = append(args, w.After.TimestampMsUTC, w.After.TimestampMsUTC, w.After.Signature.Bytes())
	}

	switch {
	case len(conds) == 0:
		where = "1=1"
	case len(conds) == 1:
		where = conds[0]
	default:
		where = conds[0] + " AND " + conds[1]
	}

	// Before (alone or combined with After) sorts DESC; After alone sorts
	// ASC; no bound at all defaults to DESC ("before = +infinity").
	orderDesc = w.Before != nil || w.After == nil
	return where, args, orderDesc
}

// maxPageLimit caps a single page regardless of what the caller requests.
const maxPageLimit = 100
