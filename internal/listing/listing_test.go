// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package listing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-digest/internal/httputil"
	"github.com/pdiddy/paper-digest/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

const sampleResponse = `[
  {
    "paper": {
      "id": "2502.01234",
      "title": "  Scaling\n  Laws for   Agents ",
      "summary": "We study scaling.",
      "authors": [{"name": "Ada Lovelace", "hidden": false}, {"name": "Alan Turing"}],
      "upvotes": 42,
      "publishedAt": "2026-02-24T17:00:00.000Z"
    },
    "numComments": 3
  },
  {
    "id": "2502.05678",
    "title": "Flat Item",
    "abstract": "Flat abstract.",
    "authors": ["Grace Hopper"],
    "upvotes": 7
  },
  {"paper": {"title": "no id"}},
  17
]`

func TestDecode(t *testing.T) {
	papers, err := Decode([]byte(sampleResponse))
	require.NoError(t, err)
	require.Len(t, papers, 2)

	assert.Equal(t, types.Paper{
		ArxivID:     "2502.01234",
		Title:       "Scaling Laws for Agents",
		Abstract:    "We study scaling.",
		Authors:     []string{"Ada Lovelace", "Alan Turing"},
		Upvotes:     42,
		PublishedAt: "2026-02-24T17:00:00.000Z",
	}, papers[0])

	assert.Equal(t, "2502.05678", papers[1].ArxivID)
	assert.Equal(t, "Flat abstract.", papers[1].Abstract)
	assert.Equal(t, []string{"Grace Hopper"}, papers[1].Authors)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"error":"bad date"}`))
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	var gotPath, gotDate string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotDate = r.URL.Query().Get("date")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	}))
	defer ts.Close()

	cfg := types.ListingConfig{BaseURL: ts.URL + "/"}
	papers, err := Fetch(context.Background(), ts.Client(), "2026-02-25", cfg)
	require.NoError(t, err)

	assert.Equal(t, "/api/daily_papers", gotPath)
	assert.Equal(t, "2026-02-25", gotDate)
	assert.Len(t, papers, 2)
}

func TestFetch_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := Fetch(context.Background(), ts.Client(), "2026-02-25", types.ListingConfig{BaseURL: ts.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestFetch_EmptyDay(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	papers, err := Fetch(context.Background(), ts.Client(), "2026-02-22", types.ListingConfig{BaseURL: ts.URL})
	require.NoError(t, err)
	assert.Empty(t, papers)
}
