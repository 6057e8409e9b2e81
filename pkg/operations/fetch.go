// Package operations holds multi-request workflows built on the client.
package operations

import (
	"context"
	"net/http"

	"github.com/habedi/tenantctl/client"
	"github.com/habedi/tenantctl/pkg/pool"
)

// FetchResult is the outcome of one GET in a fan-out.
type FetchResult struct {
	Path     string
	Status   int
	Attempts int
	Body     []byte
	Err      error
}

// FetchAll GETs every path with numWorkers concurrent calls and returns one
// result per path in input order. A failed path does not stop the others.
// Calls that hit an expired session share a single token refresh.
func FetchAll(ctx context.Context, c *client.Client, paths []string, numWorkers int) []FetchResult {
	results := pool.Run(ctx, paths, numWorkers, func(ctx context.Context, path string) (*client.Response, error) {
		return c.Do(ctx, client.Call{Method: http.MethodGet, Path: path})
	})

	out := make([]FetchResult, len(results))
	for i, r := range results {
		out[i] = FetchResult{Path: paths[i], Err: r.Err}
		if resp := r.Value; resp != nil {
			out[i].Status = resp.Status
			out[i].Attempts = resp.Attempts
			out[i].Body = resp.Body
		}
	}
	return out
}
