// Package songapi exposes the catalogue over HTTP with JSON bodies.
package songapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/illmade-knight/go-songcatalogue/pkg/catalogue"
	"github.com/illmade-knight/go-songcatalogue/pkg/types"
	"github.com/rs/zerolog"
)

// Config holds the HTTP-facing settings.
type Config struct {
	// PublicBaseURL, when set, is used for pagination links instead of the
	// request's own scheme and host. Example: "https://songs.example.com".
	PublicBaseURL string
}

// API binds the catalogue service to HTTP routes.
type API struct {
	service *catalogue.Service
	baseURL *url.URL
	logger  zerolog.Logger
}

// NewAPI creates the HTTP layer over a catalogue service.
func NewAPI(cfg *Config, service *catalogue.Service, logger zerolog.Logger) (*API, error) {
	if service == nil {
		return nil, errors.New("catalogue service cannot be nil")
	}
	a := &API{
		service: service,
		logger:  logger.With().Str("component", "SongAPI").Logger(),
	}
	if cfg.PublicBaseURL != "" {
		u, err := url.Parse(cfg.PublicBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid public base url %q", cfg.PublicBaseURL)
		}
		a.baseURL = u
	}
	return a, nil
}

// Register adds the catalogue routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /songs", a.listSongs)
	mux.HandleFunc("GET /songs/{term}", a.searchSongs)
	mux.HandleFunc("GET /average_difficulty", a.averageDifficulty)
	mux.HandleFunc("PUT /ratings", a.addRating)
	mux.HandleFunc("GET /ratings/{song_id}", a.ratingStats)
}

type link struct {
	Href string `json:"href"`
}

type songsPage struct {
	Songs []types.Song    `json:"songs"`
	Links map[string]link `json:"_links"`
}

func (a *API) listSongs(w http.ResponseWriter, r *http.Request) {
	raw, present := queryParam(r, "after")
	cursor, err := catalogue.ParseCursor(raw, present)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	page, err := a.service.ListSongs(r.Context(), cursor)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	body := songsPage{Songs: page.Songs, Links: map[string]link{}}
	if body.Songs == nil {
		body.Songs = []types.Song{}
	}
	if len(page.Songs) > 0 {
		body.Links["self"] = link{Href: a.songsURL(r, page.Cursor)}
		if page.Next != "" {
			body.Links["next"] = link{Href: a.songsURL(r, page.Next)}
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) averageDifficulty(w http.ResponseWriter, r *http.Request) {
	raw, present := queryParam(r, "level")
	filter, err := catalogue.ParseDifficultyFilter(raw, present)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	result, err := a.service.AverageDifficulty(r.Context(), filter)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if !result.Found {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No songs found to assess difficulty"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"difficulty_level":   result.Filter.Label(),
		"average_difficulty": result.Average,
	})
}

func (a *API) searchSongs(w http.ResponseWriter, r *http.Request) {
	term := r.PathValue("term")
	if term == "" {
		http.NotFound(w, r)
		return
	}
	result, err := a.service.SearchSongs(r.Context(), term)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if !result.Found {
		writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("No songs found for '%s' value.", term)})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]types.Song{"songs": result.Songs})
}

func (a *API) addRating(w http.ResponseWriter, r *http.Request) {
	var req catalogue.RatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, &catalogue.InputError{Status: http.StatusBadRequest, Message: "Please provide a JSON body."})
		return
	}
	songID, rating, err := catalogue.ParseRatingRequest(req)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if err := a.service.SubmitRating(r.Context(), songID, rating); err != nil {
		a.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNoContent)
}

type ratingStatsBody struct {
	ID string `json:"_id"`
	types.RatingStats
}

func (a *API) ratingStats(w http.ResponseWriter, r *http.Request) {
	songID, err := catalogue.ParseSongID(r.PathValue("song_id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	stats, err := a.service.RatingStats(r.Context(), songID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingStatsBody{ID: songID, RatingStats: stats})
}

// respondError maps service errors onto the wire format. Input errors carry
// their own status; anything unclassified is a 500 and is logged.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var inputErr *catalogue.InputError
	var notFound *catalogue.NotFoundError
	switch {
	case errors.As(err, &inputErr):
		a.logger.Debug().Str("path", r.URL.Path).Str("reason", inputErr.Message).Msg("Rejected client input.")
		writeJSON(w, inputErr.Status, map[string]string{"error": inputErr.Message})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": notFound.Message})
	default:
		a.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed.")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error."})
	}
}

// songsURL builds the absolute link to a listing page.
func (a *API) songsURL(r *http.Request, cursor string) string {
	u := url.URL{Scheme: "http", Host: r.Host}
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if a.baseURL != nil {
		u = *a.baseURL
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/songs"
	if cursor != "" {
		u.RawQuery = url.Values{"after": {cursor}}.Encode()
	}
	return u.String()
}

func queryParam(r *http.Request, name string) (string, bool) {
	values, ok := r.URL.Query()[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
