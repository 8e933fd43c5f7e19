package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	progressdb "github.com/mrlokans/readalong/internal/database/progress"
	"github.com/mrlokans/readalong/internal/entities"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProgressStore struct {
	byBook map[string]entities.SavedProgress
	err    error
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{byBook: make(map[string]entities.SavedProgress)}
}

func (s *fakeProgressStore) GetProgress(bookID string) (*entities.SavedProgress, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.byBook[bookID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *fakeProgressStore) ListProgress() ([]entities.SavedProgress, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]entities.SavedProgress, 0, len(s.byBook))
	for _, p := range s.byBook {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeProgressStore) Upsert(p entities.SavedProgress) (*entities.SavedProgress, error) {
	if s.err != nil {
		return nil, s.err
	}
	if existing, ok := s.byBook[p.BookID]; ok && existing.Timestamp.After(p.Timestamp) {
		return &existing, progressdb.ErrStaleTimestamp
	}
	s.byBook[p.BookID] = p
	return &p, nil
}

type fakeAuthenticator struct {
	device *entities.Device
	err    error
}

func (a *fakeAuthenticator) Authenticate(token string) (*entities.Device, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.device, nil
}

func setupProgressRouter(store *fakeProgressStore) *gin.Engine {
	return NewRouter(RouterConfig{
		ProgressStore: store,
		Authenticator: &fakeAuthenticator{device: &entities.Device{ID: "dev-1", Name: "phone"}},
		Version:       "test",
	})
}

func authedRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Token dev-1.secret")
	return req
}

func putBody(ts time.Time) string {
	payload := map[string]any{
		"locator": map[string]any{
			"href":             "ch2.xhtml",
			"fragment":         "p4",
			"totalProgression": 0.25,
		},
		"timestamp": ts.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestPutProgress_StoresPosition(t *testing.T) {
	store := newFakeProgressStore()
	router := setupProgressRouter(store)

	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPut, "/api/v1/progress/book-1", putBody(ts)))

	require.Equal(t, http.StatusNoContent, rr.Code)
	stored := store.byBook["book-1"]
	assert.Equal(t, "p4", stored.Locator.Fragment)
	assert.True(t, stored.Timestamp.Equal(ts))

	// Source defaults to the authenticated device's name.
	assert.Equal(t, "phone", stored.Source)
}

func TestPutProgress_StaleUpdateConflicts(t *testing.T) {
	store := newFakeProgressStore()
	router := setupProgressRouter(store)

	newer := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	store.byBook["book-1"] = entities.SavedProgress{BookID: "book-1", Timestamp: newer}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPut, "/api/v1/progress/book-1", putBody(newer.Add(-time.Hour))))

	require.Equal(t, http.StatusConflict, rr.Code)

	var resp ConflictResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Timestamp.Equal(newer))
}

func TestPutProgress_InvalidBody(t *testing.T) {
	router := setupProgressRouter(newFakeProgressStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPut, "/api/v1/progress/book-1", `{"locator"`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetProgress(t *testing.T) {
	store := newFakeProgressStore()
	router := setupProgressRouter(store)

	ts := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	store.byBook["book-1"] = entities.SavedProgress{
		BookID:    "book-1",
		Locator:   entities.Locator{Href: "ch2.xhtml", Fragment: "p4"},
		Timestamp: ts,
		Source:    "tablet",
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/progress/book-1", ""))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp ProgressResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "book-1", resp.BookID)
	assert.Equal(t, "p4", resp.Locator.Fragment)
	assert.Equal(t, "tablet", resp.Source)
}

func TestGetProgress_UnknownBook(t *testing.T) {
	router := setupProgressRouter(newFakeProgressStore())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/progress/unknown", ""))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListProgress(t *testing.T) {
	store := newFakeProgressStore()
	router := setupProgressRouter(store)

	store.byBook["book-1"] = entities.SavedProgress{BookID: "book-1", Timestamp: time.Now().UTC()}
	store.byBook["book-2"] = entities.SavedProgress{BookID: "book-2", Timestamp: time.Now().UTC()}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/progress", ""))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp []ProgressResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}
