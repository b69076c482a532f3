package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/formatter"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/repositories"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
	tu "github.com/desertthunder/spotifier/internal/testing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			catalog := &tu.FakeCatalog{}
			mailer := &tu.FakeMailer{}
			auth := &tu.FakeAuth{}
			registry := prometheus.NewRegistry()

			runner := NewRunner(RunnerOpts{
				Config:   config,
				Logger:   logger,
				Output:   output,
				Catalog:  catalog,
				Mailer:   mailer,
				Auth:     auth,
				Registry: registry,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.catalog != catalog {
				t.Error("expected catalog to be set")
			}
			if runner.mailer != mailer {
				t.Error("expected mailer to be set")
			}
			if runner.auth != auth {
				t.Error("expected auth to be set")
			}
			if runner.registry != registry {
				t.Error("expected registry to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil registry creates one", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.registry == nil || runner.metrics == nil || runner.sink == nil {
				t.Error("expected registry, metrics and sink to be created")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("header contains title", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			runner.writePlainHeader("Scan Complete!")
			if !strings.Contains(output.String(), "Scan Complete!") {
				t.Errorf("expected title in header, got %q", output.String())
			}
		})
	})

	t.Run("tuiLogger", func(t *testing.T) {
		t.Run("writes only to the configured file", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Log.File = filepath.Join(t.TempDir(), "spotifier.log")
			runner := NewRunner(RunnerOpts{Config: config, Output: &bytes.Buffer{}})

			runner.tuiLogger().Info("browsing")
			if content := tu.MustReadFile(t, config.Log.File); !strings.Contains(content, "browsing") {
				t.Errorf("expected log line in file, got %q", content)
			}
		})

		t.Run("discards without a file", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			if runner.tuiLogger() == nil {
				t.Error("expected a logger")
			}
		})
	})

	t.Run("connectMailer", func(t *testing.T) {
		t.Run("disabled mail logs instead of sending", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig()})
			if err := runner.connectMailer(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, ok := runner.mailer.(*services.LogMailer); !ok {
				t.Errorf("expected LogMailer, got %T", runner.mailer)
			}
		})

		t.Run("enabled mail uses SMTP", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Mail = shared.MailConfig{Enabled: true, Host: "smtp.test", Port: 2525, From: "releases@test.com"}
			runner := NewRunner(RunnerOpts{Config: config})
			if err := runner.connectMailer(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, ok := runner.mailer.(*services.SMTPMailer); !ok {
				t.Errorf("expected SMTPMailer, got %T", runner.mailer)
			}
		})

		t.Run("enabled mail without a host fails", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Mail = shared.MailConfig{Enabled: true}
			runner := NewRunner(RunnerOpts{Config: config})
			if err := runner.connectMailer(); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("keeps an injected mailer", func(t *testing.T) {
			mailer := &tu.FakeMailer{}
			runner := NewRunner(RunnerOpts{Mailer: mailer})
			if err := runner.connectMailer(); err != nil || runner.mailer != mailer {
				t.Errorf("expected injected mailer to be kept, got %T (%v)", runner.mailer, err)
			}
		})
	})

	t.Run("connectCatalog", func(t *testing.T) {
		t.Run("builds one provider for refresh and login", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify = shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret", RedirectURI: "http://127.0.0.1:3000/callback"}
			runner := NewRunner(RunnerOpts{Config: config, Catalog: &tu.FakeCatalog{}})

			if err := runner.connectCatalog(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			provider, ok := runner.auth.(*services.OAuthProvider)
			if !ok {
				t.Fatalf("expected OAuthProvider, got %T", runner.auth)
			}
			if runner.login != LoginProvider(provider) {
				t.Error("expected login to use the refresh provider")
			}
		})

		t.Run("requires credentials", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify = shared.SpotifyConfig{}
			runner := NewRunner(RunnerOpts{Config: config})
			if err := runner.connectCatalog(); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("injected auth does not need credentials", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: shared.DefaultConfig(), Auth: &tu.FakeAuth{}, Catalog: &tu.FakeCatalog{}})
			if err := runner.connectCatalog(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.login != nil {
				t.Errorf("expected no login provider, got %T", runner.login)
			}

			err := runner.UserLogin(context.Background(), &cli.Command{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected login to fail without a provider, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := []string{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names = append(names, cmd.Name)
		}
		if got := strings.Join(names, ","); got != "setup,user,library,scan,notify,serve" {
			t.Errorf("unexpected commands %s", got)
		}
	})
}

func setupTestDB(t *testing.T) *shared.Database {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

type cliFixture struct {
	runner  *Runner
	db      *shared.Database
	catalog *tu.FakeCatalog
	mailer  *tu.FakeMailer
	sink    *tu.RecordingSink
	output  *bytes.Buffer
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	f := &cliFixture{
		db: setupTestDB(t),
		catalog: &tu.FakeCatalog{
			Profile: &services.Profile{ID: "listener", DisplayName: "Listener"},
			Library: []services.SavedTrack{
				tu.Track("t1", services.ArtistRef{ID: "cat-a", Name: "Artist A"}),
				tu.Track("t2", services.ArtistRef{ID: "cat-b", Name: "Artist B"}, services.ArtistRef{ID: "cat-c", Name: "Feature"}),
				tu.Track("t3", services.ArtistRef{ID: "cat-a", Name: "Artist A"}),
			},
			Details: map[string]*services.ArtistDetail{
				"cat-a": {ID: "cat-a", Name: "Artist A", RecentRelease: models.Release{ID: "r1", Title: "First"}},
				"cat-b": {ID: "cat-b", Name: "Artist B", RecentRelease: models.Release{ID: "b1", Title: "Bee"}},
			},
		},
		mailer: &tu.FakeMailer{},
		sink:   &tu.RecordingSink{},
		output: &bytes.Buffer{},
	}

	f.runner = NewRunner(RunnerOpts{
		Database: f.db,
		Catalog:  f.catalog,
		Auth:     &tu.FakeAuth{},
		Mailer:   f.mailer,
		Registry: prometheus.NewRegistry(),
		Sink:     f.sink,
		Logger:   log.New(io.Discard),
		Output:   f.output,
	})
	return f
}

func (f *cliFixture) run(t *testing.T, args ...string) error {
	t.Helper()
	app := &cli.Command{
		Name:      "spotifier",
		Commands:  f.runner.register(),
		Writer:    io.Discard,
		ErrWriter: io.Discard,
	}
	return app.Run(context.Background(), append([]string{"spotifier"}, args...))
}

func (f *cliFixture) login(t *testing.T) *models.User {
	t.Helper()
	user, _, err := f.runner.loginUser(context.Background(), models.Credential{AccessToken: "token", RefreshToken: "refresh"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return user
}

func TestUserCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("login creates then updates the user", func(t *testing.T) {
		f := newCLIFixture(t)

		user, created, err := f.runner.loginUser(ctx, models.Credential{AccessToken: "token", RefreshToken: "refresh"})
		if err != nil || !created {
			t.Fatalf("expected user to be created, got %v %v", created, err)
		}
		if user.CatalogUserID != "listener" || user.DisplayName != "Listener" {
			t.Errorf("unexpected user %+v", user)
		}

		again, created, err := f.runner.loginUser(ctx, models.Credential{AccessToken: "new"})
		if err != nil || created {
			t.Fatalf("expected existing user, got %v %v", created, err)
		}
		if again.ID != user.ID || again.Credential.AccessToken != "new" || again.Credential.RefreshToken != "refresh" {
			t.Errorf("unexpected credential after second login %+v", again.Credential)
		}
	})

	t.Run("login fails without a profile", func(t *testing.T) {
		f := newCLIFixture(t)
		f.catalog.Profile = nil

		if _, _, err := f.runner.loginUser(ctx, models.Credential{AccessToken: "token"}); !errors.Is(err, shared.ErrAuthExpired) {
			t.Errorf("expected profile error, got %v", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		f := newCLIFixture(t)
		f.login(t)

		if err := f.run(t, "user", "list", "--json"); err != nil {
			t.Fatalf("user list failed: %v", err)
		}
		if !strings.Contains(f.output.String(), `"catalog_user_id": "listener"`) {
			t.Errorf("expected user in output, got %s", f.output.String())
		}
	})

	t.Run("email then confirm", func(t *testing.T) {
		f := newCLIFixture(t)
		user := f.login(t)

		if err := f.run(t, "user", "email", "--user", "listener", "--address", "me@example.com"); err != nil {
			t.Fatalf("user email failed: %v", err)
		}

		sent := f.mailer.Sent()
		if len(sent) != 1 || sent[0].Subject != formatter.ConfirmSubject || sent[0].Recipients[0] != "me@example.com" {
			t.Fatalf("unexpected confirmation mail %+v", sent)
		}

		users := repositories.NewUserRepository(f.db)
		stored, _ := users.Get(ctx, user.ID)
		if stored.EmailConfirmed || !strings.Contains(sent[0].Body, stored.ConfirmCode) {
			t.Fatalf("expected unconfirmed address with mailed code, got %+v", stored)
		}

		if err := f.run(t, "user", "confirm", "--user", user.ID, "--code", "WRONG"); !errors.Is(err, shared.ErrConfirmCodeMismatch) {
			t.Errorf("expected code mismatch, got %v", err)
		}
		if err := f.run(t, "user", "confirm", "--user", user.ID, "--code", stored.ConfirmCode); err != nil {
			t.Fatalf("user confirm failed: %v", err)
		}
		if confirmed, _ := users.Get(ctx, user.ID); !confirmed.Notifiable() {
			t.Error("expected user to be notifiable after confirming")
		}

		t.Run("remove", func(t *testing.T) {
			if err := f.run(t, "user", "email", "--user", user.ID, "--remove"); err != nil {
				t.Fatalf("remove failed: %v", err)
			}
			if removed, _ := users.Get(ctx, user.ID); removed.Email != "" || removed.EmailConfirmed {
				t.Errorf("expected email removed, got %+v", removed)
			}
		})
	})

	t.Run("email requires an address", func(t *testing.T) {
		f := newCLIFixture(t)
		f.login(t)

		if err := f.run(t, "user", "email", "--user", "listener"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newCLIFixture(t)

		if err := f.run(t, "user", "confirm", "--user", "nobody", "--code", "X"); !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func TestLibraryCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("sync imports primary artists and resolves releases", func(t *testing.T) {
		f := newCLIFixture(t)
		user := f.login(t)

		if err := f.run(t, "library", "sync", "--user", "listener"); err != nil {
			t.Fatalf("library sync failed: %v", err)
		}
		out := f.output.String()
		if !strings.Contains(out, "Sync completed") || !strings.Contains(out, "Artists: 2") {
			t.Errorf("unexpected output:\n%s", out)
		}

		library, err := repositories.NewUserRepository(f.db).Library(ctx, user.ID)
		if err != nil {
			t.Fatalf("failed to load library: %v", err)
		}
		if len(library) != 2 {
			t.Fatalf("expected 2 artists, got %d", len(library))
		}
		for _, a := range library {
			if a.Release.IsPlaceholder() {
				t.Errorf("expected %s to be resolved", a.CatalogID)
			}
		}
	})

	t.Run("list formats", func(t *testing.T) {
		f := newCLIFixture(t)
		f.login(t)
		if err := f.run(t, "library", "sync", "--user", "listener"); err != nil {
			t.Fatalf("library sync failed: %v", err)
		}

		f.output.Reset()
		if err := f.run(t, "library", "list", "--user", "listener", "--format", "csv"); err != nil {
			t.Fatalf("library list failed: %v", err)
		}
		out := f.output.String()
		if !strings.HasPrefix(out, "ID,Catalog ID,Name") || !strings.Contains(out, "Artist A") {
			t.Errorf("unexpected csv:\n%s", out)
		}

		if err := f.run(t, "library", "list", "--user", "listener", "--format", "yaml"); err == nil {
			t.Error("expected unsupported format error")
		}
	})

	t.Run("export", func(t *testing.T) {
		f := newCLIFixture(t)
		user := f.login(t)
		dir := filepath.Join(t.TempDir(), "export")

		if err := f.run(t, "library", "export", "--output", dir, "--format", "markdown"); err != nil {
			t.Fatalf("library export failed: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(dir, user.ID+".md"))
		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
	})
}

func TestPipelineCommands(t *testing.T) {
	t.Run("scan with notify mails confirmed followers", func(t *testing.T) {
		f := newCLIFixture(t)
		user := f.login(t)
		if err := f.run(t, "library", "sync", "--user", user.ID); err != nil {
			t.Fatalf("library sync failed: %v", err)
		}
		if err := f.run(t, "user", "email", "--user", user.ID, "--address", "me@example.com"); err != nil {
			t.Fatalf("user email failed: %v", err)
		}
		stored, _ := repositories.NewUserRepository(f.db).Get(context.Background(), user.ID)
		if err := f.run(t, "user", "confirm", "--user", user.ID, "--code", stored.ConfirmCode); err != nil {
			t.Fatalf("user confirm failed: %v", err)
		}

		f.catalog.Snapshot = services.ReleaseSnapshot{
			"cat-a": {ID: "r2", Title: "Second"},
			"cat-b": {ID: "b1", Title: "Bee"},
		}
		f.output.Reset()
		if err := f.run(t, "scan", "run", "--notify"); err != nil {
			t.Fatalf("scan run failed: %v", err)
		}

		out := f.output.String()
		if !strings.Contains(out, "New releases: 1") || !strings.Contains(out, "Groups: 1 (1 sent, 0 failed)") {
			t.Errorf("unexpected output:\n%s", out)
		}
		sent := f.mailer.Sent()
		last := sent[len(sent)-1]
		if last.Subject != "New music from Artist A" || !strings.Contains(last.Body, "Second") {
			t.Errorf("unexpected release mail %+v", last)
		}

		t.Run("notify has nothing left", func(t *testing.T) {
			f.output.Reset()
			if err := f.run(t, "notify", "run"); err != nil {
				t.Fatalf("notify run failed: %v", err)
			}
			if !strings.Contains(f.output.String(), "Groups: 0") {
				t.Errorf("unexpected output:\n%s", f.output.String())
			}
		})
	})

	t.Run("scan failure is returned", func(t *testing.T) {
		f := newCLIFixture(t)
		f.catalog.SnapshotErr = shared.ErrUpstreamUnavailable

		if err := f.run(t, "scan", "run"); !errors.Is(err, shared.ErrUpstreamUnavailable) {
			t.Errorf("expected upstream error, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		f := newCLIFixture(t)
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := f.run(t, "setup", "config", "--output", path); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("expected a loadable config, got %v", err)
		}
		if err := f.run(t, "setup", "config", "--output", path); err == nil {
			t.Error("expected error when config already exists")
		}
	})

	t.Run("database", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Database.Path = filepath.Join(t.TempDir(), "spotifier.db")
		runner := NewRunner(RunnerOpts{Config: config, Output: &bytes.Buffer{}, Logger: log.New(io.Discard), Registry: prometheus.NewRegistry()})
		t.Cleanup(func() { runner.Close() })

		app := &cli.Command{Name: "spotifier", Commands: runner.register()}
		if err := app.Run(context.Background(), []string{"spotifier", "setup", "database"}); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, config.Database.Path)
	})
}
