package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ErrUnknownWorkspace is returned for workspaces that are not watched
var ErrUnknownWorkspace = errors.New("workspace not watched")

// Registry holds one aggregator per watched workspace
type Registry struct {
	aggregators map[string]*Aggregator
	order       []string
}

// NewRegistry creates aggregators for the given workspaces
func NewRegistry(workspaces []string, fetcher Fetcher, cfg AggregatorConfig, logger *slog.Logger) *Registry {
	r := &Registry{aggregators: make(map[string]*Aggregator)}
	for _, ws := range workspaces {
		if _, ok := r.aggregators[ws]; ok {
			continue
		}
		r.aggregators[ws] = NewAggregator(ws, fetcher, cfg, logger)
		r.order = append(r.order, ws)
	}
	return r
}

// Get returns the aggregator of a workspace
func (r *Registry) Get(workspaceID string) (*Aggregator, error) {
	a, ok := r.aggregators[workspaceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkspace, workspaceID)
	}
	return a, nil
}

// Workspaces returns watched workspace IDs in configuration order
func (r *Registry) Workspaces() []string {
	return append([]string(nil), r.order...)
}

// Run runs every aggregator until ctx is done
func (r *Registry) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ws := range r.order {
		a := r.aggregators[ws]
		g.Go(func() error {
			return a.Run(ctx)
		})
	}
	return g.Wait()
}
