// internal/handlers/handlers_test.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokebid/pokebid/internal/auth"
	"github.com/pokebid/pokebid/internal/pokeapi"
)

func init() {
	// Ephemeral signing keys for token tests.
	auth.Init()
}

func TestExtractTokenFromCookie(t *testing.T) {
	assert.Equal(t, "abc123", extractTokenFromCookie("auth_token=abc123"))
	assert.Equal(t, "abc123", extractTokenFromCookie("other=x; auth_token=abc123; theme=dark"))
	assert.Equal(t, "", extractTokenFromCookie("other=x"))
	assert.Equal(t, "", extractTokenFromCookie(""))
}

func TestAuthenticateRequestRejectsMissingToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/game/list", nil)
	_, err := authenticateRequest(r)
	assert.Error(t, err)
}

func TestAuthenticateRequestAcceptsCookie(t *testing.T) {
	userID := uuid.New()
	token, err := auth.CreateJWT(userID.String())
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/game/list", nil)
	r.Header.Set("Cookie", auth.CookieName+"="+token)

	got, err := authenticateRequest(r)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestAuthenticateRequestAcceptsBearerFallback(t *testing.T) {
	userID := uuid.New()
	token, err := auth.CreateJWT(userID.String())
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/game/list", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	got, err := authenticateRequest(r)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestParseGameID(t *testing.T) {
	id := uuid.New()

	got, err := parseGameID("/game/start/"+id.String(), "/game/start/")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseGameID("/game/start/", "/game/start/")
	assert.Error(t, err)

	_, err = parseGameID("/game/start/not-a-uuid", "/game/start/")
	assert.Error(t, err)

	_, err = parseGameID("/game/start/"+id.String()+"/extra", "/game/start/")
	assert.Error(t, err)
}

func TestCreateGameRejectsUnauthenticated(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/game/create", strings.NewReader(`{"name":"x"}`))
	w := httptest.NewRecorder()

	CreateGameHandler(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCollectionRejectsUnauthenticated(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/collection/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()

	CollectionHandler(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestArenaWSRejectsUnknownGame(t *testing.T) {
	s := NewArenaServer(logrus.New())
	h := ArenaWSHandler(s.Logger, s)

	r := httptest.NewRequest(http.MethodGet, "/game/ws/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()

	h(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// stubCatalog serves a tiny fixed species catalog in the upstream shape.
func stubCatalog(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/pokemon/")
		names := map[string]int{"1": 1, "2": 2, "3": 3, "bulbasaur": 1, "ivysaur": 2, "venusaur": 3}
		id, ok := names[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		name := []string{"bulbasaur", "ivysaur", "venusaur"}[id-1]
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":   id,
			"name": name,
			"types": []map[string]interface{}{
				{"type": map[string]string{"name": "grass"}},
			},
			"sprites": map[string]interface{}{
				"front_default": fmt.Sprintf("https://img.example/%d.png", id),
			},
		})
	}))
}

func TestPokedexListPagesWithinGeneration(t *testing.T) {
	srv := stubCatalog(t)
	defer srv.Close()

	s := NewArenaServer(logrus.New())
	s.Pokeapi = &pokeapi.Client{BaseURL: srv.URL, HTTPClient: srv.Client()}

	r := httptest.NewRequest(http.MethodGet, "/pokedex?gen=1&offset=0&limit=3", nil)
	w := httptest.NewRecorder()
	PokedexListHandler(s)(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Generation int            `json:"generation"`
		Results    []pokedexEntry `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Generation)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "bulbasaur", resp.Results[0].Name)
	assert.Equal(t, []string{"grass"}, resp.Results[0].Types)
	assert.Equal(t, 1, resp.Results[0].Generation)
}

func TestPokedexListRejectsUnknownGeneration(t *testing.T) {
	s := NewArenaServer(logrus.New())

	r := httptest.NewRequest(http.MethodGet, "/pokedex?gen=99", nil)
	w := httptest.NewRecorder()
	PokedexListHandler(s)(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPokedexSearchRequiresTerm(t *testing.T) {
	s := NewArenaServer(logrus.New())

	r := httptest.NewRequest(http.MethodGet, "/pokedex/search", nil)
	w := httptest.NewRecorder()
	PokedexSearchHandler(s)(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPokedexSearchFindsByName(t *testing.T) {
	srv := stubCatalog(t)
	defer srv.Close()

	s := NewArenaServer(logrus.New())
	s.Pokeapi = &pokeapi.Client{BaseURL: srv.URL, HTTPClient: srv.Client()}

	r := httptest.NewRequest(http.MethodGet, "/pokedex/search?q=venusaur&gen=1", nil)
	w := httptest.NewRecorder()
	PokedexSearchHandler(s)(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []pokedexEntry `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, 3, resp.Results[0].ID)
}
