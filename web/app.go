// Package web is the review dashboard: list and inspect drafts, edit post
// text, and drive the same lifecycle actions the chat surface offers.
package web

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/feeds"

	"github.com/zhorzholianitornike/vinegar/draft"
	"github.com/zhorzholianitornike/vinegar/sched"
)

//go:embed templates/*
var templates embed.FS

type App struct {
	store *draft.Store
	sched *sched.Scheduler

	// BaseURL is the externally visible base for feed links.
	BaseURL   string
	MediaPath string

	reg *Registry
	log *slog.Logger
}

// NewApp returns a dashboard over the given scheduler and its store.
func NewApp(scheduler *sched.Scheduler, store *draft.Store, baseURL, mediaPath string) (*App, error) {
	a := &App{
		store:     store,
		sched:     scheduler,
		BaseURL:   baseURL,
		MediaPath: mediaPath,
		reg:       NewRegistry(),
		log:       slog.Default().With("system", "web"),
	}
	if err := a.reg.AddBaseFS("templates/base.html", templates); err != nil {
		return nil, err
	}
	for _, name := range []string{"templates/index.html", "templates/detail.html"} {
		if err := a.reg.AddFS(name, templates); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) Name() string { return "web" }

// Bind attaches the review pages; mount these behind authentication.
func (a *App) Bind(r chi.Router) {
	r.Get("/", a.index)
	r.Route("/drafts/{id:[0-9]+}", func(r chi.Router) {
		r.Get("/", a.detail)
		r.Post("/edit", a.edit)
		r.Post("/action", a.action)
	})
}

// BindPublic attaches the feed and media routes, which stay reachable
// without a session so readers and chat image previews work.
func (a *App) BindPublic(r chi.Router) {
	r.Get("/feed/rss", a.rss)
	r.Handle("/media/*", http.StripPrefix("/media/",
		http.FileServer(http.Dir(a.MediaPath))))
}

func (a *App) index(w http.ResponseWriter, req *http.Request) {
	var status draft.Status
	if s := req.URL.Query().Get("status"); s != "" {
		parsed, err := draft.ParseStatus(s)
		if err != nil {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		status = parsed
	}

	drafts, err := a.store.List(status)
	if err != nil {
		a.http500("listing drafts", w, err)
		return
	}

	err = a.reg.Render(w, "templates/index.html", Ctx{
		"title":     "დრაფტები",
		"status":    string(status),
		"drafts":    drafts,
		"scheduled": a.sched.Scheduled(),
	})
	if err != nil {
		a.log.Error("rendering index", "err", err)
	}
}

func (a *App) detail(w http.ResponseWriter, req *http.Request) {
	d, ok := a.load(w, req)
	if !ok {
		return
	}

	history, err := a.store.History(d.ID)
	if err != nil {
		a.http500("loading history", w, err)
		return
	}

	ctx := Ctx{
		"title":     fmt.Sprintf("#%d %s", d.ID, d.Subject),
		"draft":     d,
		"imageName": filepath.Base(d.ImageRef),
		"history":   history,
	}
	if d.PublishedAt != nil {
		ctx["publishedAt"] = *d.PublishedAt
	}
	if err := a.reg.Render(w, "templates/detail.html", ctx); err != nil {
		a.log.Error("rendering detail", "err", err)
	}
}

// edit saves a new version of the post text, attributed to the dashboard
// user in the edit history.
func (a *App) edit(w http.ResponseWriter, req *http.Request) {
	d, ok := a.load(w, req)
	if !ok {
		return
	}

	req.ParseForm()
	text := req.Form.Get("text")
	if text != "" && text != d.Text {
		if err := a.store.UpdateText(d.ID, text, draft.EditedByUser); err != nil {
			a.http500("updating text", w, err)
			return
		}
	}
	http.Redirect(w, req, fmt.Sprintf("/drafts/%d", d.ID), http.StatusFound)
}

func (a *App) action(w http.ResponseWriter, req *http.Request) {
	d, ok := a.load(w, req)
	if !ok {
		return
	}

	req.ParseForm()
	var err error
	switch do := req.Form.Get("do"); do {
	case "approve":
		_, err = a.sched.Engine().Approve(d.ID)
	case "reject":
		_, err = a.sched.Engine().Reject(d.ID)
	case "publish":
		_, err = a.sched.PublishNow(d.ID)
	case "back":
		_, err = a.sched.BackToEdit(d.ID)
	case "delete":
		if err := a.sched.Cancel(d.ID); err != nil && !errors.Is(err, sched.ErrNotScheduled) {
			a.http500("cancelling schedule", w, err)
			return
		}
		if err := a.store.Delete(d.ID); err != nil {
			a.http500("deleting draft", w, err)
			return
		}
		http.Redirect(w, req, "/", http.StatusFound)
		return
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, draft.ErrInvalidTransition), errors.Is(err, sched.ErrRejected):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	default:
		a.http500("applying action", w, err)
		return
	}
	http.Redirect(w, req, fmt.Sprintf("/drafts/%d", d.ID), http.StatusFound)
}

// rss serves the published drafts as an RSS feed.
func (a *App) rss(w http.ResponseWriter, req *http.Request) {
	drafts, err := a.store.List(draft.StatusPublished)
	if err != nil {
		a.http500("listing published", w, err)
		return
	}

	feed := &feeds.Feed{
		Title:       "ძმარი · published posts",
		Link:        &feeds.Link{Href: a.BaseURL},
		Description: "organic vinegar marketing posts",
		Updated:     time.Now(),
	}
	for _, d := range drafts {
		item := &feeds.Item{
			Title:       d.Subject,
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/drafts/%d", a.BaseURL, d.ID)},
			Description: RenderMarkdown(d.Text),
			Id:          fmt.Sprintf("%s/drafts/%d", a.BaseURL, d.ID),
		}
		if d.PublishedAt != nil {
			item.Created = *d.PublishedAt
		}
		feed.Items = append(feed.Items, item)
	}

	out, err := feed.ToRss()
	if err != nil {
		a.http500("rendering feed", w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(out))
}

// load fetches the draft named in the url, writing the error response on
// failure.
func (a *App) load(w http.ResponseWriter, req *http.Request) (*draft.Draft, bool) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return nil, false
	}
	d, err := a.store.Get(id)
	if errors.Is(err, draft.ErrNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		a.http500("loading draft", w, err)
		return nil, false
	}
	return d, true
}

func (a *App) http500(msg string, w http.ResponseWriter, err error) {
	a.log.Error(msg, "err", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
