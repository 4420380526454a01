package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/ingest"
	"github.com/diskuto/diskuto-api/internal/metrics"
	"github.com/diskuto/diskuto-api/internal/store"
)

// mediaType is the declared content-type label; the codec itself is
// defined structurally in internal/item, not by this label.
const mediaType = "application/protobuf3"

func pathUserID(r *http.Request) (crypto.UserID, bool) {
	uid, err := crypto.ParseUserID(chi.URLParam(r, "uid"))
	return uid, err == nil
}

func pathSignature(r *http.Request) (crypto.Signature, bool) {
	sig, err := crypto.ParseSignature(chi.URLParam(r, "sig"))
	return sig, err == nil
}

// parseWindow builds a store.Window from the `before`/`after` query
// parameters, capped by the server's configured page limit.
func parseWindow(r *http.Request, pageCap int) (store.Window, bool) {
	q := r.URL.Query()
	w := store.Window{Limit: pageCap}

	if v := q.Get("before"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return w, false
		}
		w.Before = &store.Cursor{TimestampMsUTC: ts, Signature: minSignature()}
	}
	if v := q.Get("after"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return w, false
		}
		w.After = &store.Cursor{TimestampMsUTC: ts, Signature: maxSignature()}
	}
	return w, true
}

// maxSignature/minSignature bound a timestamp-only cursor to every possible
// signature at that timestamp, so a `before`/`after` query param expressed
// as a bare millisecond value (not a full cursor) excludes every row at that
// exact timestamp: `before` pairs with the smallest signature and `after`
// with the largest, so the cursor's signature tie-break never admits one.
func maxSignature() crypto.Signature {
	var s crypto.Signature
	for i := range s {
		s[i] = 0xFF
	}
	return s
}

func minSignature() crypto.Signature {
	return crypto.Signature{}
}

func (s *Server) handleHomepage(w http.ResponseWriter, r *http.Request) {
	win, ok := parseWindow(r, s.pageCap)
	if !ok {
		http.Error(w, "malformed before/after", http.StatusBadRequest)
		return
	}
	list, err := s.feed.Homepage(r.Context(), win)
	if err != nil {
		s.log.WithError(err).Error("homepage query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeFeedResponse(w, list.Encode())
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUserID(r)
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	raw, found, err := s.feed.Profile(r.Context(), uid)
	if err != nil {
		s.log.WithError(err).Error("profile query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeItemResponse(w, raw)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUserID(r)
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	win, ok := parseWindow(r, s.pageCap)
	if !ok {
		http.Error(w, "malformed before/after", http.StatusBadRequest)
		return
	}
	list, err := s.feed.Feed(r.Context(), uid, win)
	if err != nil {
		s.log.WithError(err).Error("feed query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeFeedResponse(w, list.Encode())
}

func (s *Server) handleUserItems(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUserID(r)
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	win, ok := parseWindow(r, s.pageCap)
	if !ok {
		http.Error(w, "malformed before/after", http.StatusBadRequest)
		return
	}
	list, err := s.feed.UserItems(r.Context(), uid, win)
	if err != nil {
		s.log.WithError(err).Error("user items query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeFeedResponse(w, list.Encode())
}

func (s *Server) handleReplies(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUserID(r)
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	sig, ok := pathSignature(r)
	if !ok {
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}
	win, ok := parseWindow(r, s.pageCap)
	if !ok {
		http.Error(w, "malformed before/after", http.StatusBadRequest)
		return
	}
	list, err := s.feed.Replies(r.Context(), uid, sig, win)
	if err != nil {
		s.log.WithError(err).Error("replies query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeFeedResponse(w, list.Encode())
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUserID(r)
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	sig, ok := pathSignature(r)
	if !ok {
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}
	raw, found, err := s.feed.Item(r.Context(), uid, sig)
	if err != nil {
		s.log.WithError(err).Error("get item failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeItemResponse(w, raw)
}

func (s *Server) handlePutItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUserID(r)
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	sig, ok := pathSignature(r)
	if !ok {
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}

	if r.ContentLength < 0 {
		http.Error(w, "length required", http.StatusLengthRequired)
		return
	}
	if max := s.ingest.Validate.ItemMaxBytes; max > 0 && r.ContentLength > max {
		metrics.IngestRejections.WithLabelValues("too_large").Inc()
		s.writeIngestError(w, &ingest.Rejection{Code: ingest.CodeTooLarge, Err: fmt.Errorf("item exceeds max size of %d bytes", max)})
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, r.ContentLength+1))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	outcome, err := s.ingest.PutItem(r.Context(), uid, sig, raw)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	if outcome == ingest.Created {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, true)
}

func (s *Server) handleHeadFile(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, false)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, withBody bool) {
	uid, ok := pathUserID(r)
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	sig, ok := pathSignature(r)
	if !ok {
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}
	name := chi.URLParam(r, "name")

	rc, size, err := s.ingest.Store.OpenAttachment(r.Context(), uid, sig, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.log.WithError(err).Error("open attachment failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if withBody {
		_, _ = io.Copy(w, rc)
	}
}

func (s *Server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathUserID(r)
	if !ok {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	sig, ok := pathSignature(r)
	if !ok {
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}
	name := chi.URLParam(r, "name")

	if r.ContentLength < 0 {
		http.Error(w, "length required", http.StatusLengthRequired)
		return
	}
	if max := s.ingest.Validate.AttachmentMaxBytes; max > 0 && r.ContentLength > max {
		metrics.IngestRejections.WithLabelValues("too_large").Inc()
		s.writeIngestError(w, &ingest.Rejection{Code: ingest.CodeTooLarge, Err: fmt.Errorf("attachment exceeds max size of %d bytes", max)})
		return
	}

	outcome, err := s.ingest.PutAttachment(r.Context(), uid, sig, name, r.ContentLength, r.Body)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	if outcome == ingest.Created {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusAccepted)
	}
}

func writeItemResponse(w http.ResponseWriter, raw []byte) {
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func writeFeedResponse(w http.ResponseWriter, raw []byte) {
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// writeIngestError maps an ingest.Rejection to its HTTP status code; any
// other error is a storage/server fault, logged here at the HTTP boundary
// and reported as a bare 500.
func (s *Server) writeIngestError(w http.ResponseWriter, err error) {
	var rej *ingest.Rejection
	if errors.As(err, &rej) {
		switch rej.Code {
		case ingest.CodeForbidden:
			http.Error(w, rej.Error(), http.StatusForbidden)
		case ingest.CodeQuotaExceeded:
			http.Error(w, rej.Error(), http.StatusInsufficientStorage)
		case ingest.CodeTooLarge:
			http.Error(w, rej.Error(), http.StatusRequestEntityTooLarge)
		default:
			http.Error(w, rej.Error(), http.StatusBadRequest)
		}
		return
	}
	s.log.WithError(err).Error("ingest failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
