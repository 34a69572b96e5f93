// vinegar is a marketing agent for an organic vinegar shop: it drafts
// Facebook posts with generated text and imagery, routes them through a
// Telegram review flow, and publishes approved drafts on schedule.  A web
// dashboard covers the editing that chat is too clumsy for.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/spf13/pflag"

	"github.com/zhorzholianitornike/vinegar/auth"
	"github.com/zhorzholianitornike/vinegar/bot"
	"github.com/zhorzholianitornike/vinegar/conf"
	"github.com/zhorzholianitornike/vinegar/db"
	"github.com/zhorzholianitornike/vinegar/draft"
	"github.com/zhorzholianitornike/vinegar/gen"
	"github.com/zhorzholianitornike/vinegar/sched"
	"github.com/zhorzholianitornike/vinegar/web"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "./vinegar.json", "path to a json config file")
		addr       = pflag.String("addr", "", "listen address override")
		debug      = pflag.Bool("debug", false, "enable debug logging")
		createUser = pflag.String("create-user", "", "create a dashboard user as name:password and exit")
	)
	pflag.Parse()

	conf.LoadDotenv()
	cfg := conf.Default()
	if err := cfg.FromPath(*configPath); err != nil && !os.IsNotExist(err) {
		fatal("reading config", err)
	}
	cfg.FromEnv()
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *debug {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	slog.Debug("loaded config", "config", cfg.String())

	conn, err := db.Connect(cfg.DatabaseURI)
	if err != nil {
		fatal("connecting to database", err)
	}

	store := draft.NewStore(conn)
	if err := store.Migrate(); err != nil {
		fatal("migrating draft tables", err)
	}
	authApp := auth.NewApp(cfg, conn)
	if err := authApp.Migrate(); err != nil {
		fatal("migrating auth tables", err)
	}

	if *createUser != "" {
		name, password, ok := strings.Cut(*createUser, ":")
		if !ok {
			fatal("parsing --create-user", errors.New("expected name:password"))
		}
		if err := auth.NewUserService(conn).CreateUser(name, password); err != nil {
			fatal("creating user", err)
		}
		fmt.Printf("created user %q\n", name)
		return
	}

	text := gen.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.Model)
	image := gen.NewImagen(cfg.Imagen.Project, cfg.Imagen.Location, cfg.MediaPath, envTokenSource)
	engine := draft.NewEngine(store, text, image)

	scheduler := sched.New(engine, time.Duration(cfg.SweepIntervalSecs)*time.Second)
	if err := scheduler.Start(); err != nil {
		fatal("starting scheduler", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telegram.Token != "" {
		b := bot.New(bot.NewClient(cfg.Telegram.Token), engine, scheduler,
			cfg.DashboardURL, cfg.Telegram.AdminChatID)
		go func() {
			if err := b.Run(ctx); err != nil {
				slog.Error("bot stopped", "err", err)
			}
		}()
	} else {
		slog.Warn("no telegram token configured, chat surface disabled")
	}

	webApp, err := web.NewApp(scheduler, store, cfg.DashboardURL, cfg.MediaPath)
	if err != nil {
		fatal("building dashboard", err)
	}

	r := chi.NewRouter()
	authApp.Bind(r)
	webApp.BindPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(authApp.RequireAuthenticated)
		webApp.Bind(r)
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handlers.CombinedLoggingHandler(os.Stdout, r),
	}

	go func() {
		slog.Info("dashboard listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "err", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		slog.Error("scheduler shutdown", "err", err)
	}
}

// envTokenSource reads a pre-minted Vertex access token from the
// environment, the same way the deployment scripts provide it.
func envTokenSource(ctx context.Context) (string, error) {
	if tok := os.Getenv("GOOGLE_OAUTH_ACCESS_TOKEN"); tok != "" {
		return tok, nil
	}
	return "", errors.New("GOOGLE_OAUTH_ACCESS_TOKEN is not set")
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
