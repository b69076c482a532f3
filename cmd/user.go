package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/spotifier/internal/formatter"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/observability"
	"github.com/desertthunder/spotifier/internal/server"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/urfave/cli/v3"
)

// loginTimeout bounds the wait for the OAuth callback.
var loginTimeout = 2 * time.Minute

// UserLogin performs the OAuth2 flow, creates or updates the user and imports their library.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for a credential.
func (r *Runner) UserLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.connectCatalog(); err != nil {
		return err
	}

	cred, err := r.doOAuth(ctx, "authorization")
	if err != nil {
		return err
	}

	user, created, err := r.loginUser(ctx, cred)
	if err != nil {
		return err
	}

	if created {
		r.writePlainln("✓ Welcome, %s", displayName(user))
	} else {
		r.writePlainln("✓ Signed in again as %s", displayName(user))
	}
	r.writePlain("User ID: %s\n\n", user.ID)

	if cmd.Bool("no-sync") {
		r.writePlain("Run 'spotifier library sync --user %s' to import your library\n", user.ID)
		return nil
	}

	if err := r.syncLibrary(ctx, user, true); err != nil {
		return err
	}

	if user.Email == "" {
		r.writePlain("\nRun 'spotifier user email --user %s --address you@example.com' to receive release updates\n", user.ID)
	}
	return nil
}

// loginUser resolves the catalog profile behind cred and upserts the user.
func (r *Runner) loginUser(ctx context.Context, cred models.Credential) (*models.User, bool, error) {
	profile, err := r.catalog.UserProfile(ctx, cred)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load Spotify profile: %w", err)
	}

	users, err := r.users()
	if err != nil {
		return nil, false, err
	}

	user, created, err := users.UpsertByCatalogUserID(ctx, &models.User{
		CatalogUserID: profile.ID,
		DisplayName:   profile.DisplayName,
		Credential:    cred,
	})
	if err != nil {
		return nil, false, err
	}
	r.logger.Info("user signed in", "user", user.ID, "catalog_user", user.CatalogUserID, "created", created)
	return user, created, nil
}

func (r *Runner) doOAuth(ctx context.Context, prefix string) (models.Credential, error) {
	if r.login == nil {
		return models.Credential{}, fmt.Errorf("%w: no authorization flow configured", shared.ErrMissingCredentials)
	}
	state := shared.GenerateID()

	authURL := r.login.AuthURL(state)
	oauthHandler := server.NewOAuthHandler(r.login, state)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	serveCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	srv := server.New(r.config.Server, router, r.logger)
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for %s at %v", prefix, server.Addr(r.config.Server))
		if err := srv.Run(serveCtx); err != nil {
			serverErrors <- err
		}
	}()

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", loginTimeout)

	timeout := time.NewTimer(loginTimeout)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return models.Credential{}, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return models.Credential{}, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, loginTimeout)
	case <-ctx.Done():
		return models.Credential{}, ctx.Err()
	}

	if result.Error() != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Error())
	}
	if result.Credential.AccessToken == "" {
		return models.Credential{}, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Credential, nil
}

type userJSON struct {
	ID             string    `json:"id"`
	CatalogUserID  string    `json:"catalog_user_id"`
	DisplayName    string    `json:"display_name"`
	Email          string    `json:"email,omitempty"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserList lists every user.
func (r *Runner) UserList(ctx context.Context, cmd *cli.Command) error {
	users, err := r.users()
	if err != nil {
		return err
	}
	list, err := users.List(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make([]userJSON, 0, len(list))
		for _, u := range list {
			out = append(out, userJSON{
				ID:             u.ID,
				CatalogUserID:  u.CatalogUserID,
				DisplayName:    u.DisplayName,
				Email:          u.Email,
				EmailConfirmed: u.EmailConfirmed,
				CreatedAt:      u.CreatedAt,
			})
		}
		return r.writeJSON(out, true)
	}

	r.writePlain("Found %d users:\n\n", len(list))
	for i, u := range list {
		email := "no email"
		if u.Email != "" {
			email = u.Email
			if !u.EmailConfirmed {
				email += " (unconfirmed)"
			}
		}
		r.writePlain("%d. %s [%s] %s\n", i+1, displayName(u), u.ID, email)
	}
	return nil
}

// UserEmail stores an unconfirmed address and mails its confirmation code, or removes the address.
func (r *Runner) UserEmail(ctx context.Context, cmd *cli.Command) error {
	user, err := r.findUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}
	users, err := r.users()
	if err != nil {
		return err
	}

	if cmd.Bool("remove") {
		if err := users.RemoveEmail(ctx, user.ID); err != nil {
			return err
		}
		r.writePlain("✓ Email removed for %s\n", displayName(user))
		return nil
	}

	address := cmd.String("address")
	if address == "" {
		return fmt.Errorf("%w: --address or --remove is required", shared.ErrMissingArgument)
	}
	if err := r.connectMailer(); err != nil {
		return err
	}

	code := shared.GenerateCode()
	if err := users.SetEmail(ctx, user.ID, address, code); err != nil {
		return err
	}

	msg := services.Message{
		Recipients: []string{address},
		Subject:    formatter.ConfirmSubject,
		Body:       formatter.ConfirmBody(user.DisplayName, code),
	}
	if err := r.mailer.Send(ctx, msg); err != nil {
		r.sink.Report(observability.Event{Kind: observability.KindConfirmFailed, UserID: user.ID, Err: err})
		return fmt.Errorf("address saved but the confirmation mail failed: %w", err)
	}

	r.writePlain("✓ Confirmation code sent to %s\n", address)
	r.writePlain("Run 'spotifier user confirm --user %s --code <code>' to finish\n", user.ID)
	return nil
}

// UserConfirm confirms the user's address with the mailed code.
func (r *Runner) UserConfirm(ctx context.Context, cmd *cli.Command) error {
	user, err := r.findUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}
	users, err := r.users()
	if err != nil {
		return err
	}

	if err := users.ConfirmEmail(ctx, user.ID, cmd.String("code")); err != nil {
		return err
	}
	r.writePlain("✓ %s will receive release updates\n", user.Email)
	return nil
}

func displayName(u *models.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.CatalogUserID
}
