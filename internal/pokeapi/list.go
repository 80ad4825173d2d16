// internal/pokeapi/list.go
package pokeapi

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// listConcurrency bounds parallel catalog fetches for a page load.
const listConcurrency = 8

// ListRange fetches species startID..endID inclusive, preserving dex order.
// Individual fetch failures drop that entry rather than failing the page;
// the catalog occasionally 404s ids inside a generation's nominal range.
func (c *Client) ListRange(ctx context.Context, startID, endID int) ([]*Pokemon, error) {
	if endID < startID {
		return nil, nil
	}

	results := make([]*Pokemon, endID-startID+1)
	sem := make(chan struct{}, listConcurrency)
	var wg sync.WaitGroup

	for id := startID; id <= endID; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			p, err := c.GetByID(ctx, id)
			if err != nil {
				return
			}
			results[id-startID] = p
		}(id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*Pokemon, 0, len(results))
	for _, p := range results {
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// Search matches a term against a generation's species by name substring or
// exact dex id, falling back to a direct catalog lookup when nothing in the
// generation matches.
func (c *Client) Search(ctx context.Context, gen int, term string) ([]*Pokemon, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}

	start, end, ok := GenerationRange(gen)
	if !ok {
		start, end, _ = GenerationRange(1)
	}

	all, err := c.ListRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	var matches []*Pokemon
	for _, p := range all {
		if strings.Contains(p.Name, term) || strconv.Itoa(p.ID) == term {
			matches = append(matches, p)
		}
	}
	if len(matches) > 0 {
		return matches, nil
	}

	// No cached match: try the term directly as a name or id.
	p, err := c.GetPokemon(ctx, term)
	if err != nil {
		return nil, err
	}
	return []*Pokemon{p}, nil
}
