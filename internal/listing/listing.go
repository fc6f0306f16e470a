// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package listing fetches the day's paper list from the Hugging Face
// daily papers API.
package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/paper-digest/internal/httputil"
	"github.com/pdiddy/paper-digest/pkg/types"
)

// DefaultBaseURL is the listing API host.
const DefaultBaseURL = "https://huggingface.co"

// hfPaper is the paper object of one daily_papers item.
type hfPaper struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Summary     string            `json:"summary"`
	Abstract    string            `json:"abstract"`
	Authors     []json.RawMessage `json:"authors"`
	Upvotes     int               `json:"upvotes"`
	PublishedAt string            `json:"publishedAt"`
}

// hfItem wraps a paper under "paper" in the current API shape.
type hfItem struct {
	Paper       json.RawMessage `json:"paper"`
	PublishedAt string          `json:"publishedAt"`
}

// Fetch returns the papers listed for date (YYYY-MM-DD) in API order.
func Fetch(ctx context.Context, client *http.Client, date string, cfg types.ListingConfig) ([]types.Paper, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	apiURL := fmt.Sprintf("%s/api/daily_papers?date=%s", strings.TrimRight(base, "/"), url.QueryEscape(date))

	resp, err := httputil.Get(ctx, client, apiURL, cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("listing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing API returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading listing response: %w", err)
	}
	return Decode(body)
}

// Decode parses a daily_papers response body. Items may carry the paper
// directly or wrapped under "paper"; items without an id are dropped.
func Decode(body []byte) ([]types.Paper, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parsing listing response: %w", err)
	}

	papers := make([]types.Paper, 0, len(items))
	for _, raw := range items {
		var item hfItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		paperRaw := raw
		if len(item.Paper) > 0 && !bytes.Equal(item.Paper, []byte("null")) {
			paperRaw = item.Paper
		}

		var hp hfPaper
		if err := json.Unmarshal(paperRaw, &hp); err != nil || strings.TrimSpace(hp.ID) == "" {
			continue
		}

		abstract := hp.Summary
		if abstract == "" {
			abstract = hp.Abstract
		}
		published := hp.PublishedAt
		if published == "" {
			published = item.PublishedAt
		}

		papers = append(papers, types.Paper{
			ArxivID:     strings.TrimSpace(hp.ID),
			Title:       normalizeSpace(hp.Title),
			Abstract:    strings.TrimSpace(abstract),
			Authors:     authorNames(hp.Authors),
			Upvotes:     hp.Upvotes,
			PublishedAt: published,
		})
	}
	return papers, nil
}

// authorNames accepts both {"name": "..."} objects and bare strings.
func authorNames(raw []json.RawMessage) []string {
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(r, &obj); err == nil && obj.Name != "" {
			names = append(names, strings.TrimSpace(obj.Name))
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err == nil && s != "" {
			names = append(names, strings.TrimSpace(s))
		}
	}
	return names
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
