// internal/pokeapi/client.go
package pokeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pokebid/pokebid/internal/cache"
)

// DefaultBaseURL is the public species catalog endpoint.
const DefaultBaseURL = "https://pokeapi.co/api/v2"

// ErrNotFound is returned when the catalog has no species for the given
// name or id.
var ErrNotFound = errors.New("pokemon not found")

// Pokemon is the subset of the catalog response the service consumes.
type Pokemon struct {
	ID      int          `json:"id"`
	Name    string       `json:"name"`
	Types   []TypeSlot   `json:"types"`
	Stats   []StatEntry  `json:"stats"`
	Sprites SpriteBundle `json:"sprites"`
}

type TypeSlot struct {
	Type NamedResource `json:"type"`
}

type StatEntry struct {
	BaseStat int           `json:"base_stat"`
	Stat     NamedResource `json:"stat"`
}

type NamedResource struct {
	Name string `json:"name"`
}

type SpriteBundle struct {
	FrontDefault string       `json:"front_default"`
	Other        OtherSprites `json:"other"`
}

type OtherSprites struct {
	OfficialArtwork ArtworkSprite `json:"official-artwork"`
}

type ArtworkSprite struct {
	FrontDefault string `json:"front_default"`
}

// Artwork returns the best image for a species: official artwork if present,
// else the default front sprite.
func (p *Pokemon) Artwork() string {
	if art := p.Sprites.Other.OfficialArtwork.FrontDefault; art != "" {
		return art
	}
	return p.Sprites.FrontDefault
}

// Client fetches species data over HTTP, caching responses in Redis. The
// catalog is read-only; no write access exists or is needed.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a catalog client with sane timeouts.
func NewClient() *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetPokemon looks a species up by name or numeric id. Names are lowercased
// before the request, matching how the catalog keys its resources.
func (c *Client) GetPokemon(ctx context.Context, nameOrID string) (*Pokemon, error) {
	key := strings.ToLower(strings.TrimSpace(nameOrID))
	if key == "" {
		return nil, ErrNotFound
	}

	var cached Pokemon
	if err := cache.GetSpecies(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	url := fmt.Sprintf("%s/pokemon/%s", c.BaseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("species catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("species catalog returned status %d", resp.StatusCode)
	}

	var p Pokemon
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode species response: %w", err)
	}

	// Cache under both the requested key and the canonical id/name so a
	// later lookup by either form hits.
	_ = cache.SetSpecies(ctx, key, &p)
	_ = cache.SetSpecies(ctx, strconv.Itoa(p.ID), &p)
	_ = cache.SetSpecies(ctx, p.Name, &p)

	return &p, nil
}

// GetByID is a convenience wrapper around GetPokemon for numeric ids.
func (c *Client) GetByID(ctx context.Context, id int) (*Pokemon, error) {
	return c.GetPokemon(ctx, strconv.Itoa(id))
}
