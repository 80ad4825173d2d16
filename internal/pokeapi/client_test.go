package pokeapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a Client at a stub catalog serving a handful of species.
func newTestClient(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()

	known := map[string]string{
		"pikachu": pokemonJSON(25, "pikachu"),
		"25":      pokemonJSON(25, "pikachu"),
		"1":       pokemonJSON(1, "bulbasaur"),
		"2":       pokemonJSON(2, "ivysaur"),
		"3":       pokemonJSON(3, "venusaur"),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[len("/pokemon/"):]
		body, ok := known[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	c := NewClient()
	c.BaseURL = srv.URL
	return c, srv
}

func pokemonJSON(id int, name string) string {
	return fmt.Sprintf(`{
		"id": %d,
		"name": %q,
		"types": [{"type": {"name": "electric"}}],
		"stats": [{"base_stat": 35, "stat": {"name": "hp"}}],
		"sprites": {
			"front_default": "https://img.example/%d.png",
			"other": {"official-artwork": {"front_default": "https://img.example/art/%d.png"}}
		}
	}`, id, name, id, id)
}

func TestGetPokemonByName(t *testing.T) {
	c, _ := newTestClient(t)

	p, err := c.GetPokemon(context.Background(), "  Pikachu ")
	require.NoError(t, err)
	assert.Equal(t, 25, p.ID)
	assert.Equal(t, "pikachu", p.Name)
	assert.Equal(t, "https://img.example/art/25.png", p.Artwork())
}

func TestGetPokemonNotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.GetPokemon(context.Background(), "missingno")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArtworkFallsBackToFrontSprite(t *testing.T) {
	p := &Pokemon{Sprites: SpriteBundle{FrontDefault: "front.png"}}
	assert.Equal(t, "front.png", p.Artwork())
}

func TestListRangeKeepsDexOrder(t *testing.T) {
	c, _ := newTestClient(t)

	// id 4 is unknown to the stub; the page drops it rather than failing.
	out, err := c.ListRange(context.Background(), 1, 4)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{out[0].ID, out[1].ID, out[2].ID})
}

func TestSearchFallsBackToDirectLookup(t *testing.T) {
	c, _ := newTestClient(t)

	// "pikachu" is gen 1 but the stub only serves ids 1..3 for the range
	// scan, so the substring pass misses and the direct lookup kicks in.
	out, err := c.Search(context.Background(), 1, "Pikachu")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 25, out[0].ID)
}

func TestGenerationOf(t *testing.T) {
	assert.Equal(t, 1, GenerationOf(151))
	assert.Equal(t, 2, GenerationOf(152))
	assert.Equal(t, 9, GenerationOf(1010))
	assert.Equal(t, 0, GenerationOf(99999))
}
