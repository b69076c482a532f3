package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/observability"
	"github.com/desertthunder/spotifier/internal/repositories"
	"github.com/desertthunder/spotifier/internal/server"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/desertthunder/spotifier/internal/tasks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

// LoginProvider builds the authorization URL and exchanges the callback code.
type LoginProvider interface {
	AuthURL(state string) string
	server.Exchanger
}

// CatalogClient is the catalog as used by the CLI: pipeline reads plus profile lookup at login.
type CatalogClient interface {
	services.Catalog
	services.ProfileSource
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Collaborators left nil in [RunnerOpts] are built from the config on first use.
type Runner struct {
	config      *shared.Config
	configPath  string
	db          *shared.Database
	catalog     CatalogClient
	auth        services.AuthProvider
	login       LoginProvider
	mailer      services.Mailer
	registry    *prometheus.Registry
	metrics     *observability.Metrics
	sink        observability.Sink
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Database    *shared.Database
	Catalog     CatalogClient
	Auth        services.AuthProvider
	Login       LoginProvider
	Mailer      services.Mailer
	Registry    *prometheus.Registry
	Sink        observability.Sink
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	metrics := observability.NewMetrics(opts.Registry)
	if opts.Sink == nil {
		opts.Sink = observability.NewReporter(opts.Logger, metrics)
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		db:          opts.Database,
		catalog:     opts.Catalog,
		auth:        opts.Auth,
		login:       opts.Login,
		mailer:      opts.Mailer,
		registry:    opts.Registry,
		metrics:     metrics,
		sink:        opts.Sink,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: opts.OpenBrowser,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, userCommand, libraryCommand, scanCommand, notifyCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Close releases the database connection, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *Runner) database() (*shared.Database, error) {
	if r.db != nil {
		return r.db, nil
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	db, err := shared.OpenFromConfig(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db
	return db, nil
}

func (r *Runner) users() (*repositories.UserRepository, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	return repositories.NewUserRepository(db), nil
}

// connectCatalog builds the catalog client and the OAuth provider when they were not injected.
// The provider serves both token refresh and the authorization code flow.
func (r *Runner) connectCatalog() error {
	creds := r.config.Credentials.Spotify

	if r.auth == nil {
		provider, err := services.NewOAuthProvider(creds, "")
		if err != nil {
			return err
		}
		r.auth = provider
		if r.login == nil {
			r.login = provider
		}
	}

	if r.catalog == nil {
		catalog, err := services.NewSpotifyCatalog(creds, r.config.Catalog, r.logger)
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		r.catalog = catalog
	}
	return nil
}

// connectMailer builds the configured mailer unless one was injected.
func (r *Runner) connectMailer() error {
	if r.mailer != nil {
		return nil
	}
	mailer, err := services.NewMailer(r.config.Mail, r.logger)
	if err != nil {
		return err
	}
	r.mailer = mailer
	return nil
}

func (r *Runner) pipeline() (tasks.Pipeline, error) {
	db, err := r.database()
	if err != nil {
		return tasks.Pipeline{}, err
	}
	if err := r.connectCatalog(); err != nil {
		return tasks.Pipeline{}, err
	}
	if err := r.connectMailer(); err != nil {
		return tasks.Pipeline{}, err
	}

	return tasks.Pipeline{
		Artists: repositories.NewArtistRepository(db),
		Users:   repositories.NewUserRepository(db),
		Catalog: r.catalog,
		Auth:    r.auth,
		Mailer:  r.mailer,
		Logger:  r.logger,
		Sink:    r.sink,
		Metrics: r.metrics,
	}, nil
}

// findUser resolves ident as an internal user id first, then as a catalog user id.
func (r *Runner) findUser(ctx context.Context, ident string) (*models.User, error) {
	if strings.TrimSpace(ident) == "" {
		return nil, fmt.Errorf("%w: --user is required", shared.ErrMissingArgument)
	}
	users, err := r.users()
	if err != nil {
		return nil, err
	}
	if user, err := users.Get(ctx, ident); err == nil {
		return user, nil
	}
	user, err := users.GetByCatalogUserID(ctx, ident)
	if err != nil {
		return nil, err
	}
	return users.Get(ctx, user.ID)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1DB954"))
	ruleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

func (r *Runner) writePlainHeader(title string) {
	rule := ruleStyle.Render(strings.Repeat("═", 39))
	r.writePlain("%s\n", rule)
	r.writePlain("%s\n", headerStyle.Render(title))
	r.writePlain("%s\n", rule)
}
