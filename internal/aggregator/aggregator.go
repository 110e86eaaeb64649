// Package aggregator implements the upstream market-data adapters. Every
// adapter satisfies model.Downloader: fetch a half-open window of bars for
// one symbol, normalised to canonical columns, ascending, deduplicated.
package aggregator

import (
	"log"
	"net/http"
	"time"

	"github.com/Qolorerr/Athena/internal/model"
)

const defaultTimeout = 30 * time.Second

// Config holds adapter credentials.
type Config struct {
	// MOEX passport credentials for the analytic (futoi) endpoint.
	MOEXLogin    string
	MOEXPassword string
}

// Registry maps aggregator identities to their adapters. Dispatch is a plain
// lookup by enum value; new upstreams add an entry.
type Registry struct {
	clients map[model.Aggregator]model.Downloader
}

// NewRegistry builds the adapter set. The analytic adapter needs passport
// credentials and is left unregistered without them, so rules referencing it
// fail fast at creation instead of with auth errors at tick time.
func NewRegistry(cfg Config) *Registry {
	clients := map[model.Aggregator]model.Downloader{
		model.AggregatorMOEX: NewMOEX(),
	}
	if cfg.MOEXLogin != "" && cfg.MOEXPassword != "" {
		clients[model.AggregatorMOEXAnalytic] = NewMOEXAnalytic(cfg.MOEXLogin, cfg.MOEXPassword)
	} else {
		log.Printf("[aggregator] no moex credentials, analytic adapter not registered")
	}
	return &Registry{clients: clients}
}

// Client returns the adapter for an aggregator, if registered.
func (r *Registry) Client(a model.Aggregator) (model.Downloader, bool) {
	c, ok := r.clients[a]
	return c, ok
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// moscow is the exchange-local zone used in ISS timestamps.
var moscow = time.FixedZone("MSK", 3*3600)

const issTimeLayout = "2006-01-02 15:04:05"
const issDateLayout = "2006-01-02"
