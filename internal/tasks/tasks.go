// package tasks implements the release pipeline: library sync, artist detail resolution, release scans and notifications.
//
// The engines share their stores and collaborators through [Pipeline].
// Operations emit progress updates via channels for non-blocking status reporting to CLI/HTTP layers.
package tasks

import (
	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/observability"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline holds the dependencies shared by every engine.
type Pipeline struct {
	Artists ArtistStore
	Users   UserStore
	Catalog services.Catalog
	Auth    services.AuthProvider
	Mailer  services.Mailer

	Logger  *log.Logger
	Sink    observability.Sink
	Metrics *observability.Metrics
}

// withDefaults fills in the optional observers.
//
// Metrics default to an unregistered set so engines never nil-check them.
func (p Pipeline) withDefaults() Pipeline {
	if p.Logger == nil {
		p.Logger = shared.NewLogger(nil)
	}
	if p.Sink == nil {
		p.Sink = observability.Discard{}
	}
	if p.Metrics == nil {
		p.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	return p
}

func (p Pipeline) logger(component string) *log.Logger {
	return shared.WithLogger(p.Logger, "component", component)
}
