// Spotify Web API implementation of [Catalog] and [ProfileSource]
//
// Requests go through github.com/zmb3/spotify/v2. User requests carry the stored access token as is,
// so an expired token surfaces as [shared.ErrAuthExpired] instead of being refreshed behind the caller's back.
// Artist detail and the new-release feed use an app token from the client credentials flow.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1/"
)

// SpotifyCatalog implements [Catalog] and [ProfileSource] against the Spotify Web API.
type SpotifyCatalog struct {
	baseURL         string
	tokenURL        string
	httpClient      *http.Client
	app             *spotify.Client
	limiter         *rate.Limiter
	market          string
	newReleasePages int
	logger          *log.Logger
}

// CatalogOption configures a [SpotifyCatalog].
type CatalogOption func(*SpotifyCatalog)

// WithBaseURL points the catalog at a different API root (used by tests).
func WithBaseURL(u string) CatalogOption {
	return func(c *SpotifyCatalog) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithTokenURL overrides the token endpoint used by the client credentials flow.
func WithTokenURL(u string) CatalogOption {
	return func(c *SpotifyCatalog) { c.tokenURL = u }
}

// WithHTTPClient sets the base HTTP client for all requests.
func WithHTTPClient(hc *http.Client) CatalogOption {
	return func(c *SpotifyCatalog) { c.httpClient = hc }
}

// WithAppClient supplies an already authorized client for app-level requests,
// bypassing the client credentials flow.
func WithAppClient(hc *http.Client) CatalogOption {
	return func(c *SpotifyCatalog) {
		c.app = spotify.New(hc, spotify.WithBaseURL(c.baseURL))
	}
}

// WithLimiter replaces the request limiter built from [shared.CatalogConfig].
func WithLimiter(l *rate.Limiter) CatalogOption {
	return func(c *SpotifyCatalog) { c.limiter = l }
}

// NewSpotifyCatalog creates a catalog client from the Spotify credentials and catalog settings.
//
// Options are applied in order, so [WithBaseURL] must precede [WithAppClient].
func NewSpotifyCatalog(creds shared.SpotifyConfig, cfg shared.CatalogConfig, logger *log.Logger, opts ...CatalogOption) (*SpotifyCatalog, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	burst := max(cfg.Burst, 1)
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	c := &SpotifyCatalog{
		baseURL:         spotifyBaseURL,
		tokenURL:        spotifyTokenURL,
		httpClient:      http.DefaultClient,
		limiter:         rate.NewLimiter(rate.Limit(rps), burst),
		market:          cfg.Market,
		newReleasePages: max(cfg.NewReleasePages, 1),
		logger:          shared.WithLogger(logger, "component", "catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.app == nil {
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
		}
		cc := clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     c.tokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		c.app = spotify.New(cc.Client(ctx), spotify.WithBaseURL(c.baseURL))
	}

	return c, nil
}

// userClient returns a client that sends cred's access token without refreshing it.
func (c *SpotifyCatalog) userClient(ctx context.Context, cred models.Credential) *spotify.Client {
	tok := &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return spotify.New(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)), spotify.WithBaseURL(c.baseURL))
}

func (c *SpotifyCatalog) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// SavedLibraryPage retrieves one page of the user's saved tracks. The limit is clamped to [1, 50].
func (c *SpotifyCatalog) SavedLibraryPage(ctx context.Context, cred models.Credential, offset, limit int) (*LibraryPage, error) {
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token", shared.ErrAuthExpired)
	}
	limit = min(max(limit, 1), MaxPageSize)
	offset = max(offset, 0)

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	page, err := c.userClient(ctx, cred).CurrentUsersTracks(ctx, spotify.Limit(limit), spotify.Offset(offset))
	if err != nil {
		return nil, classify("saved tracks", err)
	}

	items := make([]SavedTrack, 0, len(page.Tracks))
	for _, st := range page.Tracks {
		track := SavedTrack{
			ID:               string(st.ID),
			Name:             st.Name,
			AvailableMarkets: st.AvailableMarkets,
		}
		for _, a := range st.Artists {
			track.Artists = append(track.Artists, ArtistRef{ID: string(a.ID), Name: a.Name})
		}
		items = append(items, track)
	}

	c.logger.Debug("fetched library page", "offset", offset, "items", len(items), "total", page.Total)
	return &LibraryPage{Items: items, Total: int(page.Total), Offset: offset}, nil
}

// ArtistDetail retrieves the artist and picks the newest album or single as its recent release.
// An artist without albums or singles keeps the placeholder release.
func (c *SpotifyCatalog) ArtistDetail(ctx context.Context, catalogArtistID string) (*ArtistDetail, error) {
	if catalogArtistID == "" {
		return nil, fmt.Errorf("%w: catalog artist id is required", shared.ErrValidation)
	}
	id := spotify.ID(catalogArtistID)

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	artist, err := c.app.GetArtist(ctx, id)
	if err != nil {
		return nil, classify("artist "+catalogArtistID, err)
	}

	detail := &ArtistDetail{
		ID:            string(artist.ID),
		Name:          artist.Name,
		Genres:        artist.Genres,
		Images:        imageURLs(artist.Images),
		RecentRelease: models.PlaceholderRelease(),
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	opts := []spotify.RequestOption{spotify.Limit(MaxPageSize)}
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}
	albums, err := c.app.GetArtistAlbums(ctx, id, []spotify.AlbumType{spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle}, opts...)
	if err != nil {
		return nil, classify("albums for "+catalogArtistID, err)
	}

	for _, album := range albums.Albums {
		rel := releaseFromAlbum(album)
		if detail.RecentRelease.IsPlaceholder() || newer(rel, detail.RecentRelease) {
			detail.RecentRelease = rel
		}
	}

	return detail, nil
}

// CatalogReleases walks the new-release feed and keeps the newest release per primary artist.
func (c *SpotifyCatalog) CatalogReleases(ctx context.Context) (ReleaseSnapshot, error) {
	snapshot := make(ReleaseSnapshot)

	for page := range c.newReleasePages {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		opts := []spotify.RequestOption{spotify.Limit(MaxPageSize), spotify.Offset(page * MaxPageSize)}
		if c.market != "" {
			opts = append(opts, spotify.Country(c.market))
		}
		albums, err := c.app.NewReleases(ctx, opts...)
		if err != nil {
			return nil, classify("new releases", err)
		}

		for _, album := range albums.Albums {
			if len(album.Artists) == 0 || album.Artists[0].ID == "" {
				continue
			}
			artistID := string(album.Artists[0].ID)
			rel := releaseFromAlbum(album)
			if cur, ok := snapshot[artistID]; !ok || newer(rel, cur) {
				snapshot[artistID] = rel
			}
		}

		if len(albums.Albums) < MaxPageSize || (page+1)*MaxPageSize >= int(albums.Total) {
			break
		}
	}

	c.logger.Debug("fetched release snapshot", "artists", len(snapshot))
	return snapshot, nil
}

// UserProfile retrieves the catalog account that owns cred.
func (c *SpotifyCatalog) UserProfile(ctx context.Context, cred models.Credential) (*Profile, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	user, err := c.userClient(ctx, cred).CurrentUser(ctx)
	if err != nil {
		return nil, classify("current user", err)
	}
	return &Profile{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}, nil
}

func releaseFromAlbum(album spotify.SimpleAlbum) models.Release {
	return models.Release{
		ID:          string(album.ID),
		Title:       album.Name,
		ReleaseDate: album.ReleaseDate,
		Images:      imageURLs(album.Images),
	}
}

// newer reports whether a was released after b. Dates are ISO formatted with
// year, month or day precision, so they order lexically.
func newer(a, b models.Release) bool {
	return a.ReleaseDate > b.ReleaseDate
}

func imageURLs(images []spotify.Image) []string {
	urls := make([]string, 0, len(images))
	for _, img := range images {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	return urls
}

// classify maps a Spotify client error onto the catalog error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var se spotify.Error
	var sep *spotify.Error
	var re *oauth2.RetrieveError
	switch {
	case errors.As(err, &se):
		status = se.Status
	case errors.As(err, &sep):
		status = sep.Status
	case errors.As(err, &re) && re.Response != nil:
		// the app token could not be obtained; the catalog is unusable until it can
		return fmt.Errorf("%w: %s: token endpoint returned %d", shared.ErrUpstreamUnavailable, op, re.Response.StatusCode)
	}

	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s: %v", shared.ErrAuthExpired, op, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s: %v", shared.ErrNotFound, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", shared.ErrUpstreamUnavailable, op, err)
	}
}
