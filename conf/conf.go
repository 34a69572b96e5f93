package conf

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// TelegramConfig holds the review-bot credentials.
type TelegramConfig struct {
	Token       string
	AdminChatID int64
}

// GeminiConfig holds text-generation settings.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// ImagenConfig holds image-generation settings.
type ImagenConfig struct {
	Project  string
	Location string
}

// A Config holds options for the running agent.
type Config struct {
	Debug      bool
	ListenAddr string

	SessionSecret string

	// DatabaseURI is a connectable sqlite URI string
	DatabaseURI string

	// MediaPath is where generated images are written
	MediaPath string

	// DashboardURL is the externally visible dashboard base url,
	// used for "edit on dashboard" links in chat
	DashboardURL string

	// SweepIntervalSecs is how often the scheduler checks for due posts
	SweepIntervalSecs int

	Telegram TelegramConfig
	Gemini   GeminiConfig
	Imagen   ImagenConfig
}

// String returns the config as a string.
func (c *Config) String() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	err := enc.Encode(c)
	if err != nil {
		panic(err)
	}
	return buf.String()
}

// FromPath loads a config from path and merges it into c.
func (c *Config) FromPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.FromReader(f)
}

// FromReader loads a config from the reader r.
func (c *Config) FromReader(r io.Reader) error {
	return json.NewDecoder(r).Decode(c)
}

// FromEnv merges credential environment variables into c.  Variable names
// match what deployment environments are expected to provide.
func (c *Config) FromEnv() {
	setString(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	setString(&c.Gemini.APIKey, "GOOGLE_GEMINI_API_KEY")
	setString(&c.Gemini.Model, "GEMINI_MODEL")
	setString(&c.Imagen.Project, "GOOGLE_CLOUD_PROJECT")
	setString(&c.Imagen.Location, "GCP_LOCATION")
	setString(&c.DashboardURL, "DASHBOARD_URL")
	setString(&c.SessionSecret, "SESSION_SECRET")

	if s := os.Getenv("ADMIN_CHAT_ID"); len(s) > 0 {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			c.Telegram.AdminChatID = id
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); len(v) > 0 {
		*dst = v
	}
}

// LoadDotenv loads a .env file if one is present.  Already-set environment
// variables are not overwritten, so real deployment env always wins.
func LoadDotenv() {
	_ = godotenv.Load()
}

// Default returns a sensible default config.  Merge a config file and the
// environment into it with FromPath/FromEnv.
func Default() *Config {
	c := &Config{}
	c.ListenAddr = "0.0.0.0:7000"
	c.DatabaseURI = "./drafts.db"
	c.MediaPath = "./media"
	c.DashboardURL = "http://localhost:7000"
	c.SessionSecret = "SET-IN-CONFIG-FILE"
	c.SweepIntervalSecs = 60
	c.Gemini.Model = "gemini-1.5-flash"
	c.Imagen.Location = "us-central1"
	return c
}
