package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	target := r.config.Database.Path
	if r.config.Database.Driver == shared.DriverPostgres {
		target = "postgres"
	}
	r.logger.Info("initializing database", "driver", r.config.Database.Driver, "target", target)

	db, err := r.database()
	if err != nil {
		return err
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", target)
	r.writePlain("✓ Database ready (%s)\n", target)
	return nil
}

// SetupConfig writes the default configuration to the output path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		return fmt.Errorf("%w: --output is required", shared.ErrMissingArgument)
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Config written to %s\n\n", path)
	r.writePlain("Next steps:\n")
	r.writePlain("1. Add your Spotify client_id and client_secret (or set %s / %s)\n",
		shared.EnvSpotifyClientID, shared.EnvSpotifyClientSecret)
	r.writePlain("2. Run 'spotifier setup database'\n")
	r.writePlain("3. Run 'spotifier user login'\n")
	return nil
}
