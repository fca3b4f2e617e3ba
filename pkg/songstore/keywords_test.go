package songstore_test

import (
	"testing"

	"github.com/illmade-knight/go-songcatalogue/pkg/songstore"
	"github.com/stretchr/testify/assert"
)

func TestKeywords(t *testing.T) {
	testCases := []struct {
		name   string
		artist string
		title  string
		want   []string
	}{
		{
			name:   "Lower-cases and drops stop words",
			artist: "The Yousicians",
			title:  "Lycanthropic Metamorphosis",
			want:   []string{"yousicians", "lycanthropic", "metamorphosis"},
		},
		{
			name:   "Folds diacritics and splits punctuation",
			artist: "Beyoncé",
			title:  "Déjà-Vu (Live)",
			want:   []string{"beyonce", "deja", "vu", "live"},
		},
		{
			name:   "Deduplicates tokens",
			artist: "Yousicians",
			title:  "yousicians YOUSICIANS",
			want:   []string{"yousicians"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, songstore.Keywords(tc.artist, tc.title))
		})
	}
}

func TestSearchTokens_EmptyForPunctuation(t *testing.T) {
	assert.Empty(t, songstore.SearchTokens("!!! ..."))
	assert.Empty(t, songstore.SearchTokens("the"))
}

func TestParseID(t *testing.T) {
	id, err := songstore.NewID()
	assert.NoError(t, err)

	canonical, err := songstore.ParseID(id)
	assert.NoError(t, err)
	assert.Equal(t, id, canonical)

	_, err = songstore.ParseID("not-an-id")
	assert.Error(t, err)

	_, err = songstore.ParseID("")
	assert.Error(t, err)
}

func TestNewID_IsMonotonic(t *testing.T) {
	prev, err := songstore.NewID()
	assert.NoError(t, err)
	for i := 0; i < 1000; i++ {
		next, err := songstore.NewID()
		assert.NoError(t, err)
		assert.Less(t, prev, next)
		prev = next
	}
}
