package auth

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/zhorzholianitornike/vinegar/conf"
	"github.com/zhorzholianitornike/vinegar/db"
	"github.com/zhorzholianitornike/vinegar/db/monarch"
)

const (
	sessionJar = "vinegar-session"
	loginUrl   = "/login/"
)

var loginTemplate = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><title>login</title></head>
<body>
<h1>ძმარი dashboard</h1>
{{range .Flashes}}<p class="flash">{{.}}</p>{{end}}
<form method="post" action="/login/">
  <input type="text" name="username" placeholder="username" autofocus>
  <input type="password" name="password" placeholder="password">
  <button type="submit">log in</button>
</form>
</body></html>`))

type App struct {
	db    db.DB
	store sessions.Store
	serv  *UserService
}

// NewApp returns a new authz/n web application.
func NewApp(cfg *conf.Config, conn db.DB) *App {
	return &App{
		db:    conn,
		serv:  NewUserService(conn),
		store: sessions.NewCookieStore([]byte(cfg.SessionSecret)),
	}
}

func (a *App) Name() string { return "auth" }

func (a *App) Bind(r chi.Router) {
	r.Get("/login/", a.login)
	r.Post("/login/", a.login)
	r.Get("/logout/", a.logout)
}

func (a *App) Migrate() error {
	m, err := monarch.NewManager(a.db)
	if err != nil {
		return err
	}
	return m.Upgrade(userMigration)
}

// RequireAuthenticated redirects anonymous requests to the login page.
func (a *App) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		session, _ := a.store.Get(req, sessionJar)
		if session.Values["authenticated"] != true {
			http.Redirect(w, req, loginUrl, http.StatusFound)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (a *App) login(w http.ResponseWriter, req *http.Request) {
	session, _ := a.store.Get(req, sessionJar)

	if req.Method == http.MethodPost {
		req.ParseForm()
		username, password := req.Form.Get("username"), req.Form.Get("password")
		if ok, _ := a.serv.Validate(username, password); ok {
			session.Values["authenticated"] = true
			session.Values["user"] = username
			session.Save(req, w)
			http.Redirect(w, req, "/", http.StatusFound)
			return
		}
		session.AddFlash("invalid username or password")
	}

	// either a fresh visit or a failed login; show the form
	flashes := session.Flashes()
	session.Save(req, w)
	loginTemplate.Execute(w, map[string]any{"Flashes": flashes})
}

func (a *App) logout(w http.ResponseWriter, req *http.Request) {
	session, _ := a.store.Get(req, sessionJar)
	session.Values["authenticated"] = false
	session.Values["user"] = ""
	session.Save(req, w)
	http.Redirect(w, req, loginUrl, http.StatusFound)
}
