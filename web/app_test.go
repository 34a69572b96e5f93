package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhorzholianitornike/vinegar/draft"
	"github.com/zhorzholianitornike/vinegar/sched"
)

type stubText struct{}

func (stubText) GeneratePost(ctx context.Context, subject string) (string, error) {
	return "🍎 post about " + subject, nil
}

type stubImage struct{}

func (stubImage) GenerateImage(ctx context.Context, subject string) (string, error) {
	return "/media/stub.png", nil
}

func testApp(t *testing.T) (*App, *draft.Store, *chi.Mux) {
	t.Helper()
	conn, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)

	store := draft.NewStore(conn)
	require.NoError(t, store.Migrate())

	engine := draft.NewEngine(store, stubText{}, stubImage{})
	scheduler := sched.New(engine, time.Minute)

	app, err := NewApp(scheduler, store, "http://localhost:7000", t.TempDir())
	require.NoError(t, err)

	r := chi.NewRouter()
	app.Bind(r)
	app.BindPublic(r)
	return app, store, r
}

func seed(t *testing.T, store *draft.Store, status draft.Status) int64 {
	t.Helper()
	id, err := store.Create("ვაშლის ძმარი", "🍎 *sour* power", "/media/x.png")
	require.NoError(t, err)
	if status != draft.StatusDraft {
		require.NoError(t, store.UpdateStatus(id, status))
	}
	return id
}

func TestIndex(t *testing.T) {
	assert := assert.New(t)
	_, store, r := testApp(t)

	seed(t, store, draft.StatusDraft)
	seed(t, store, draft.StatusApproved)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(http.StatusOK, w.Code)
	assert.Contains(w.Body.String(), "ვაშლის ძმარი")
	assert.Contains(w.Body.String(), "status-approved")

	// status filter
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/?status=approved", nil))
	assert.Equal(http.StatusOK, w.Code)
	assert.NotContains(w.Body.String(), "status-draft\"")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/?status=limbo", nil))
	assert.Equal(http.StatusBadRequest, w.Code)
}

func TestDetail(t *testing.T) {
	assert := assert.New(t)
	_, store, r := testApp(t)
	id := seed(t, store, draft.StatusDraft)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/drafts/1", nil))
	assert.Equal(http.StatusOK, w.Code)
	// markdown preview rendered
	assert.Contains(w.Body.String(), "<em>sour</em>")

	// text edits land in the history, attributed to the dashboard user
	form := url.Values{"text": {"🍏 sweeter copy"}}
	req := httptest.NewRequest("POST", "/drafts/1/edit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(http.StatusFound, w.Code)

	d, err := store.Get(id)
	assert.NoError(err)
	assert.Equal("🍏 sweeter copy", d.Text)
	history, err := store.History(id)
	assert.NoError(err)
	assert.Len(history, 1)
	assert.Equal(draft.EditedByUser, history[0].EditedBy)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/drafts/999", nil))
	assert.Equal(http.StatusNotFound, w.Code)
}

func postAction(r http.Handler, id string, do string) *httptest.ResponseRecorder {
	form := url.Values{"do": {do}}
	req := httptest.NewRequest("POST", "/drafts/"+id+"/action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestActions(t *testing.T) {
	assert := assert.New(t)
	_, store, r := testApp(t)
	id := seed(t, store, draft.StatusDraft)

	assert.Equal(http.StatusFound, postAction(r, "1", "approve").Code)
	d, _ := store.Get(id)
	assert.Equal(draft.StatusApproved, d.Status)

	assert.Equal(http.StatusFound, postAction(r, "1", "publish").Code)
	d, _ = store.Get(id)
	assert.Equal(draft.StatusPublished, d.Status)

	// publishing again conflicts instead of double-publishing
	assert.Equal(http.StatusConflict, postAction(r, "1", "publish").Code)

	assert.Equal(http.StatusBadRequest, postAction(r, "1", "explode").Code)

	assert.Equal(http.StatusFound, postAction(r, "1", "delete").Code)
	_, err := store.Get(id)
	assert.ErrorIs(err, draft.ErrNotFound)
}

func TestRSS(t *testing.T) {
	assert := assert.New(t)
	_, store, r := testApp(t)

	seed(t, store, draft.StatusApproved)
	assert.Equal(http.StatusFound, postAction(r, "1", "publish").Code)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/feed/rss", nil))
	assert.Equal(http.StatusOK, w.Code)
	assert.Equal("application/xml", w.Header().Get("Content-Type"))
	assert.Contains(w.Body.String(), "<rss")
	assert.Contains(w.Body.String(), "ვაშლის ძმარი")
}
