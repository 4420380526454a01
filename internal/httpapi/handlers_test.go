package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/diskuto/diskuto-api/internal/crypto"
	"github.com/diskuto/diskuto-api/internal/feed"
	"github.com/diskuto/diskuto-api/internal/feedcache"
	"github.com/diskuto/diskuto-api/internal/ingest"
	"github.com/diskuto/diskuto-api/internal/item"
	"github.com/diskuto/diskuto-api/internal/policy"
	"github.com/diskuto/diskuto-api/internal/store"
)

// newTestServer wires a full Server against a throwaway sqlite database and
// blob directory, the same way cmd/diskuto's serve command does, so routing
// and status-code mapping are exercised end to end rather than per-handler.
func newTestServer(t *testing.T) (*httptest.Server, crypto.UserID, ed25519.PrivateKey) {
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
		t.Fatalf("store.Open: %v", err)
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

	ingestSvc := &ingest.Service{
		Store:    st,
		Policy:   pol,
		Follows:  follows,
		Validate: item.ValidationConfig{ItemMaxBytes: 1024, AttachmentMaxBytes: 1024},
		Now:      func() int64 { return 1 },
	}
	feedSvc := feed.New(st, follows)

	log := logrus.New()
	log.SetOutput(newNullWriter())

	srv := New(feedSvc, ingestSvc, log, 50)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, uid, priv
}

type nullWriter struct{}

func newNullWriter() *nullWriter                { return &nullWriter{} }
func (*nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func signItem(priv ed25519.PrivateKey, raw []byte) crypto.Signature {
	sigBytes := ed25519.Sign(priv, raw)
	var sig crypto.Signature
	copy(sig[:], sigBytes)
	return sig
}

func TestHandleHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/diskuto/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestPutThenGetItem_RoundTrip(t *testing.T) {
	ts, uid, priv := newTestServer(t)
	raw := item.NewBuilder(1000, 0).WithPost(item.Post{Body: "hello"}).Encode()
	sig := signItem(priv, raw)

	url := fmt.Sprintf("%s/diskuto/users/%s/items/%s/", ts.URL, uid.String(), sig.String())
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.ContentLength = int64(len(raw))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Get(url)
	if err != nil {
		t.Fatalf("GET item: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != mediaType {
		t.Fatalf("expected Content-Type %q, got %q", mediaType, ct)
	}
}

func TestPutItem_MissingContentLength_Returns411(t *testing.T) {
	ts, uid, priv := newTestServer(t)
	raw := item.NewBuilder(1000, 0).WithPost(item.Post{Body: "hello"}).Encode()
	sig := signItem(priv, raw)

	url := fmt.Sprintf("%s/diskuto/users/%s/items/%s/", ts.URL, uid.String(), sig.String())
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.ContentLength = -1
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT item: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusLengthRequired {
		t.Fatalf("expected 411, got %d", resp.StatusCode)
	}
}

func TestPutItem_OverSizeCap_Returns413(t *testing.T) {
	ts, uid, priv := newTestServer(t)
	body := make([]byte, 2048)
	raw := item.NewBuilder(1000, 0).WithPost(item.Post{Body: string(body)}).Encode()
	sig := signItem(priv, raw)

	url := fmt.Sprintf("%s/diskuto/users/%s/items/%s/", ts.URL, uid.String(), sig.String())
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.ContentLength = int64(len(raw))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT item: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestGetItem_NotFound_Returns404(t *testing.T) {
	ts, uid, _ := newTestServer(t)
	var sig crypto.Signature
	sig[0] = 0x42

	url := fmt.Sprintf("%s/diskuto/users/%s/items/%s/", ts.URL, uid.String(), sig.String())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET item: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetProfile_BadUserID_Returns400(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/diskuto/users/not-a-valid-id/profile")
	if err != nil {
		t.Fatalf("GET profile: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
