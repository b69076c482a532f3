package shared

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override values from the config file.
const (
	EnvSpotifyClientID     = "SPOTIFIER_SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret = "SPOTIFIER_SPOTIFY_CLIENT_SECRET"
	EnvSpotifyRedirectURI  = "SPOTIFIER_SPOTIFY_REDIRECT_URI"
	EnvDatabaseDriver      = "SPOTIFIER_DATABASE_DRIVER"
	EnvDatabaseDSN         = "SPOTIFIER_DATABASE_DSN"
	EnvMailPassword        = "SPOTIFIER_MAIL_PASSWORD"
	EnvLogLevel            = "SPOTIFIER_LOG_LEVEL"
)

// LoadEnvFiles loads variables from the given dotenv files (".env" when none are given).
// Missing files are ignored and existing variables are never overwritten.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides config values with any SPOTIFIER_* variables that are set.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	set(&c.Credentials.Spotify.ClientID, EnvSpotifyClientID)
	set(&c.Credentials.Spotify.ClientSecret, EnvSpotifyClientSecret)
	set(&c.Credentials.Spotify.RedirectURI, EnvSpotifyRedirectURI)
	set(&c.Database.Driver, EnvDatabaseDriver)
	set(&c.Database.DSN, EnvDatabaseDSN)
	set(&c.Mail.Password, EnvMailPassword)
	set(&c.Log.Level, EnvLogLevel)
}
