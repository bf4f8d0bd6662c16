// Package marketplace fetches listings from marketplace search endpoints.
package marketplace

import (
	"context"
	"fmt"
	"net/http"

	"market_watch/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Searcher runs one marketplace search.
type Searcher interface {
	Search(ctx context.Context, p model.SearchParams) ([]model.Listing, error)
}

// Router sends each search to the searcher registered for its source.
type Router struct {
	sources map[string]Searcher
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{sources: make(map[string]Searcher)}
}

// Register binds a searcher to a source name.
func (r *Router) Register(source string, s Searcher) {
	r.sources[source] = s
}

// Search implements Searcher.
func (r *Router) Search(ctx context.Context, p model.SearchParams) ([]model.Listing, error) {
	s, ok := r.sources[p.Source]
	if !ok {
		return nil, fmt.Errorf("no searcher for source %q", p.Source)
	}
	return s.Search(ctx, p)
}
