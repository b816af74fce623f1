package updater

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func helperUpdateInfo(hash string, mirrors ...string) *UpdateInfo {
	return &UpdateInfo{
		Version:      "2026.1",
		LauncherURL:  strings.Join(mirrors, " "),
		APIVersion:   "2026.1",
		LauncherHash: hash,
	}
}

func helperPayloadServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func helperAssertTempDirEmpty(t *testing.T, u *Updater) {
	t.Helper()
	entries, err := ioutil.ReadDir(u.Config.TempDir)
	assert.NoError(t, err)
	assert.Empty(t, entries, "no partial download may be left behind")
}

func TestDownloadVerifiesHash(t *testing.T) {
	// spans several read blocks
	payload := []byte(strings.Repeat("lumen update payload ", 1000))
	digest := sha1.Sum(payload)
	srv := helperPayloadServer(t, payload)

	t.Run("matching-hash", func(t *testing.T) {
		u := helperCreateUpdater(t)

		destPath, err := u.Download(context.Background(), helperUpdateInfo(hex.EncodeToString(digest[:]), srv.URL))
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(filepath.Base(destPath), "lumen_update_"))

		written, err := ioutil.ReadFile(destPath)
		assert.NoError(t, err)
		assert.Equal(t, payload, written)
	})

	t.Run("hash-compare-ignores-case", func(t *testing.T) {
		u := helperCreateUpdater(t)

		_, err := u.Download(context.Background(), helperUpdateInfo(strings.ToUpper(hex.EncodeToString(digest[:])), srv.URL))
		assert.NoError(t, err)
	})

	t.Run("no-hash-skips-verification", func(t *testing.T) {
		u := helperCreateUpdater(t)

		_, err := u.Download(context.Background(), helperUpdateInfo("", srv.URL))
		assert.NoError(t, err)
	})
}

func TestDownloadFromIntegrityErrors(t *testing.T) {
	t.Run("hash-mismatch", func(t *testing.T) {
		srv := helperPayloadServer(t, []byte("tampered payload"))
		u := helperCreateUpdater(t)
		u.initHTTPClientsOnce()

		destPath := filepath.Join(u.Config.TempDir, "lumen_update_test")
		assert.NoError(t, ioutil.WriteFile(destPath, nil, 0600))

		err := u.downloadFrom(context.Background(), srv.URL, destPath, strings.Repeat("00", 20))
		assert.Error(t, err)
		assert.True(t, IsIntegrityError(err))
		assert.Contains(t, err.Error(), "incorrect file hash")
	})

	t.Run("content-too-short", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// declare more than is sent, the client sees a cut stream
			w.Header().Set("Content-Length", "4096")
			_, _ = w.Write([]byte("way too little"))
		}))
		defer srv.Close()

		u := helperCreateUpdater(t)
		u.initHTTPClientsOnce()

		destPath := filepath.Join(u.Config.TempDir, "lumen_update_test")
		assert.NoError(t, ioutil.WriteFile(destPath, nil, 0600))

		err := u.downloadFrom(context.Background(), srv.URL, destPath, "")
		assert.Error(t, err)
		assert.True(t, IsIntegrityError(err))
		assert.Contains(t, err.Error(), "content too short")
	})
}

func TestDownloadFromRequiresContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// flushing first forces a chunked response without a length
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("payload of unknown size"))
	}))
	defer srv.Close()

	u := helperCreateUpdater(t)
	u.initHTTPClientsOnce()

	destPath := filepath.Join(u.Config.TempDir, "lumen_update_test")
	assert.NoError(t, ioutil.WriteFile(destPath, nil, 0600))

	err := u.downloadFrom(context.Background(), srv.URL, destPath, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "content length")
}

func TestDownloadTriesMirrorsInOrder(t *testing.T) {
	payload := []byte("good payload")

	var mu sync.Mutex
	var hits []string

	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, "bad")
		mu.Unlock()
		http.Error(w, "out of disk", http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	goodSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, "good")
		mu.Unlock()
		_, _ = w.Write(payload)
	}))
	defer goodSrv.Close()

	u := helperCreateUpdater(t)

	destPath, err := u.Download(context.Background(), helperUpdateInfo("", badSrv.URL, goodSrv.URL))
	assert.NoError(t, err)

	written, err := ioutil.ReadFile(destPath)
	assert.NoError(t, err)
	assert.Equal(t, payload, written)
	assert.Equal(t, []string{"bad", "good"}, hits)
}

func TestDownloadStopsAfterFirstSuccess(t *testing.T) {
	payload := []byte("good payload")
	firstSrv := helperPayloadServer(t, payload)

	var secondHit bool
	secondSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondHit = true
	}))
	defer secondSrv.Close()

	u := helperCreateUpdater(t)

	_, err := u.Download(context.Background(), helperUpdateInfo("", firstSrv.URL, secondSrv.URL))
	assert.NoError(t, err)
	assert.False(t, secondHit)
}

func TestDownloadAllMirrorsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of disk", http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := helperCreateUpdater(t)

	_, err := u.Download(context.Background(), helperUpdateInfo("", srv.URL+"/a", srv.URL+"/b"))
	assert.Error(t, err)
	assert.Equal(t, ErrAllMirrorsFailed, errors.Cause(err))
	assert.Contains(t, err.Error(), "mirror "+srv.URL+"/a")
	assert.Contains(t, err.Error(), "mirror "+srv.URL+"/b")
	helperAssertTempDirEmpty(t, u)
}

func TestDownloadNoMirrors(t *testing.T) {
	u := helperCreateUpdater(t)

	_, err := u.Download(context.Background(), helperUpdateInfo(""))
	assert.Error(t, err)
	helperAssertTempDirEmpty(t, u)
}

func TestDownloadHashMismatchRemovesPartialFile(t *testing.T) {
	srv := helperPayloadServer(t, []byte("tampered payload"))

	u := helperCreateUpdater(t)

	_, err := u.Download(context.Background(), helperUpdateInfo(strings.Repeat("00", 20), srv.URL))
	assert.Error(t, err)
	assert.Equal(t, ErrAllMirrorsFailed, errors.Cause(err))
	assert.Contains(t, err.Error(), "incorrect file hash")
	helperAssertTempDirEmpty(t, u)
}

func TestDownloadCancelRemovesPartialFile(t *testing.T) {
	block := make([]byte, downloadBlockSize)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// trickle the body until the client goes away
		w.Header().Set("Content-Length", fmt.Sprintf("%d", 1<<30))
		flusher := w.(http.Flusher)
		for {
			if _, err := w.Write(block); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}))
	defer srv.Close()

	u := helperCreateUpdater(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := u.Download(ctx, helperUpdateInfo("", srv.URL))
	assert.Equal(t, ErrDownloadCanceled, errors.Cause(err))
	helperAssertTempDirEmpty(t, u)
}

func TestDownloadReportsProgress(t *testing.T) {
	payload := []byte(strings.Repeat("x", 3*downloadBlockSize))
	srv := helperPayloadServer(t, payload)

	u := helperCreateUpdater(t)

	var got []Progress
	u.coordinator.ProgressFunc = func(p Progress) { got = append(got, p) }

	_, err := u.Download(context.Background(), helperUpdateInfo("", srv.URL))
	assert.NoError(t, err)

	// deliver what the download left in the progress slot
	u.coordinator.dispatch()

	if assert.NotEmpty(t, got) {
		last := got[len(got)-1]
		assert.Equal(t, int64(len(payload)), last.Read)
		assert.Equal(t, int64(len(payload)), last.Total)
		assert.Equal(t, 100, last.Percent())
	}
}
