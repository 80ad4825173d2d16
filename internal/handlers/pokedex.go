// internal/handlers/pokedex.go
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pokebid/pokebid/internal/pokeapi"
)

const (
	defaultPageSize = 20
	maxPageSize     = 60
)

// pokedexEntry is the browsing shape returned by the catalog endpoints.
type pokedexEntry struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Image      string   `json:"image"`
	Types      []string `json:"types"`
	Generation int      `json:"generation"`
}

func toEntry(p *pokeapi.Pokemon) pokedexEntry {
	types := make([]string, 0, len(p.Types))
	for _, t := range p.Types {
		types = append(types, t.Type.Name)
	}
	return pokedexEntry{
		ID:         p.ID,
		Name:       p.Name,
		Image:      p.Artwork(),
		Types:      types,
		Generation: pokeapi.GenerationOf(p.ID),
	}
}

// PokedexListHandler pages through a generation of the catalog.
// Route: GET /pokedex?gen=1&offset=0&limit=20
func PokedexListHandler(s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		gen, err := strconv.Atoi(q.Get("gen"))
		if err != nil || gen < 1 {
			gen = 1
		}
		start, end, ok := pokeapi.GenerationRange(gen)
		if !ok {
			http.Error(w, "unknown generation", http.StatusBadRequest)
			return
		}

		offset, _ := strconv.Atoi(q.Get("offset"))
		if offset < 0 {
			offset = 0
		}
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil || limit <= 0 {
			limit = defaultPageSize
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}

		from := start + offset
		if from > end {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"generation": gen,
				"results":    []pokedexEntry{},
			})
			return
		}
		to := from + limit - 1
		if to > end {
			to = end
		}

		mons, err := s.Pokeapi.ListRange(r.Context(), from, to)
		if err != nil {
			s.Logger.Warnf("pokedex list failed (gen %d, %d-%d): %v", gen, from, to, err)
			http.Error(w, "catalog unavailable", http.StatusBadGateway)
			return
		}

		results := make([]pokedexEntry, 0, len(mons))
		for _, p := range mons {
			results = append(results, toEntry(p))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"generation": gen,
			"offset":     offset,
			"results":    results,
		})
	}
}

// PokedexSearchHandler searches a generation by name fragment or number.
// Route: GET /pokedex/search?q=pika&gen=1
func PokedexSearchHandler(s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		term := strings.TrimSpace(q.Get("q"))
		if term == "" {
			http.Error(w, "missing search term", http.StatusBadRequest)
			return
		}
		gen, err := strconv.Atoi(q.Get("gen"))
		if err != nil || gen < 1 || gen > pokeapi.NumGenerations {
			gen = 1
		}

		mons, err := s.Pokeapi.Search(r.Context(), gen, term)
		if err != nil {
			s.Logger.Warnf("pokedex search failed (gen %d, %q): %v", gen, term, err)
			http.Error(w, "catalog unavailable", http.StatusBadGateway)
			return
		}

		results := make([]pokedexEntry, 0, len(mons))
		for _, p := range mons {
			results = append(results, toEntry(p))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"query":   term,
			"results": results,
		})
	}
}
