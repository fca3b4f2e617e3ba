package catalogue

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-songcatalogue/pkg/songstore"
	"github.com/illmade-knight/go-songcatalogue/pkg/types"
)

const (
	// MinRating and MaxRating bound an accepted rating, inclusive.
	MinRating = 1.0
	MaxRating = 5.0
)

// ParseCursor validates the "after" pagination token. An absent token yields
// the empty cursor, meaning the first page.
func ParseCursor(raw string, present bool) (string, error) {
	if !present {
		return "", nil
	}
	id, err := songstore.ParseID(raw)
	if err != nil {
		return "", badRequest("Invalid 'after' value '%s' provided.", raw)
	}
	return id, nil
}

// ParseDifficultyFilter turns the optional "level" parameter into a filter.
// An absent parameter selects every song.
func ParseDifficultyFilter(raw string, present bool) (types.DifficultyFilter, error) {
	if !present {
		return types.AllLevels(), nil
	}
	v, ok := parseFloat(raw)
	if !ok {
		return types.DifficultyFilter{}, badRequest("Please provide a numerical value for difficulty level.")
	}
	return types.MinLevel(v), nil
}

// ParseSongID validates a song identifier taken from a path or body.
func ParseSongID(raw string) (string, error) {
	id, err := songstore.ParseID(raw)
	if err != nil {
		return "", badRequest("Invalid song_id '%s' provided.", raw)
	}
	return id, nil
}

// RatingRequest is the body of a rating submission. Fields stay raw so that a
// missing value, a null and a malformed value can be told apart.
type RatingRequest struct {
	SongID json.RawMessage `json:"song_id"`
	Rating json.RawMessage `json:"rating"`
}

// ParseRatingRequest validates a rating submission and returns the canonical
// song id and rating value.
func ParseRatingRequest(req RatingRequest) (string, float64, error) {
	if isNull(req.SongID) {
		return "", 0, badRequest("Please provide a song id.")
	}
	var rawID string
	if err := json.Unmarshal(req.SongID, &rawID); err != nil {
		return "", 0, badRequest("Invalid song_id '%s' provided.", strings.Trim(string(req.SongID), `"`))
	}
	id, err := ParseSongID(rawID)
	if err != nil {
		return "", 0, err
	}

	rating, err := ParseRating(req.Rating)
	if err != nil {
		return "", 0, err
	}
	return id, rating, nil
}

// ParseRating accepts a JSON number or a numeric string within
// [MinRating, MaxRating]. A missing or null value is reported as 404 to stay
// compatible with existing clients; any other malformed value is a 400.
func ParseRating(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, &InputError{Status: http.StatusNotFound, Message: "Please provide a rating value for the song."}
	}

	var value float64
	var number json.Number
	var text string
	switch {
	case json.Unmarshal(raw, &number) == nil:
		v, ok := parseFloat(number.String())
		if !ok {
			return 0, badRequest("Please provide a valid numerical rating for the song.")
		}
		value = v
	case json.Unmarshal(raw, &text) == nil:
		v, ok := parseFloat(text)
		if !ok {
			return 0, badRequest("Please provide a valid numerical rating for the song.")
		}
		value = v
	default:
		return 0, badRequest("Please provide a valid numerical rating for the song.")
	}

	if value < MinRating || value > MaxRating {
		return 0, badRequest("Please provide a rating between 1 and 5.")
	}
	return value, nil
}

// parseFloat rejects NaN and infinities, which would otherwise slip through
// range checks and poison cache keys.
func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
