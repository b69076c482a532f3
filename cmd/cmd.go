// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "User ID or Spotify user ID",
		Required: true,
	}
}

// setupCommand handles setup operations for the database and configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config file populated with defaults",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path of the config file to create",
						Value:   defaultConfigPath,
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// userCommand handles accounts and their notification email addresses.
func userCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage users",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with Spotify using OAuth2 and import your library",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-sync",
						Usage: "Skip the library sync after signing in",
					},
				},
				Action: r.UserLogin,
			},
			{
				Name:  "list",
				Usage: "List users",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.UserList,
			},
			{
				Name:  "email",
				Usage: "Set or remove the address release updates are sent to",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:  "address",
						Usage: "Email address; a confirmation code is mailed to it",
					},
					&cli.BoolFlag{
						Name:  "remove",
						Usage: "Remove the stored address",
					},
				},
				Action: r.UserEmail,
			},
			{
				Name:  "confirm",
				Usage: "Confirm an email address with the code that was mailed to it",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:     "code",
						Usage:    "Confirmation code",
						Required: true,
					},
				},
				Action: r.UserConfirm,
			},
		},
	}
}

// libraryCommand handles a user's saved library.
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Saved library operations",
		Commands: []*cli.Command{
			{
				Name:  "sync",
				Usage: "Import the artists of a user's saved tracks",
				Flags: []cli.Flag{
					userFlag(),
					&cli.BoolFlag{
						Name:  "no-resolve",
						Usage: "Do not wait for new artists' release details",
					},
				},
				Action: r.LibrarySync,
			},
			{
				Name:  "list",
				Usage: "List the artists a user follows",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv, markdown, json",
						Value:   "text",
					},
				},
				Action: r.LibraryList,
			},
			{
				Name:  "export",
				Usage: "Export every user's library to a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv, markdown, json",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: library_export_{epoch})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent exports (max 10)",
						Value: 4,
					},
				},
				Action: r.LibraryExport,
			},
			{
				Name:  "browse",
				Usage: "Browse users and their libraries in an interactive terminal UI",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-sync",
						Usage: "Browse only; do not offer library syncs",
					},
				},
				Action: r.LibraryBrowse,
			},
		},
	}
}

// scanCommand handles the release scan.
func scanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Release scan operations",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Compare every artist with the newest catalog releases and flag followers",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "notify",
						Usage: "Send release emails after the scan",
					},
				},
				Action: r.ScanRun,
			},
		},
	}
}

// notifyCommand handles release notifications.
func notifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "notify",
		Usage: "Release notification operations",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Email every user with pending releases",
				Action: r.NotifyRun,
			},
		},
	}
}

// serveCommand runs the scheduler, detail queue and HTTP request layer.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the daily schedule and the HTTP API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-schedule",
				Usage: "Serve requests without the daily scan",
			},
		},
		Action: r.Serve,
	}
}
