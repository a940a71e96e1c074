package api

import (
	"context"
	"fmt"
	"net/http"
)

// Directory returns every supervisor known to the back-office, with identity,
// display name, company grouping and online flag. Filtering out the local
// user's own company happens in the coordinator, not here.
func (c *Client) Directory(ctx context.Context) ([]Supervisor, error) {
	req, err := http.NewRequest(http.MethodGet, c.url("supervisors"), nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}

	var sups []Supervisor
	if err := c.do(ctx, req, &sups); err != nil {
		return nil, err
	}
	return sups, nil
}
