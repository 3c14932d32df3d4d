// Package search indexes team content in Meilisearch and falls back to a
// Postgres scan when the index is unavailable.
package search

import (
	"encoding/json"
	"strings"

	"inkwell/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	TeamID  string `json:"teamId"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Status  string `json:"status"`
}

// Query describes a search request. TeamID is mandatory; hits never cross teams.
type Query struct {
	Text         string
	TeamID       string
	FilterStatus string
	Limit        int
	Offset       int
}

// Response is the envelope returned to HTTP callers.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// ContentRecord is what gets pushed into the index for a content item.
type ContentRecord struct {
	ID     string `json:"id"`
	TeamID string `json:"teamId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Status string `json:"status"`
}

func RecordFromContent(item store.Content) ContentRecord {
	return ContentRecord{
		ID:     item.ID,
		TeamID: item.TeamID,
		Title:  item.Title,
		Body:   ContentText(item.Blocks),
		Status: item.Status,
	}
}

// ContentText flattens the readable text of text, thread and link blocks.
func ContentText(blocks []store.ContentBlock) string {
	var parts []string
	for _, block := range blocks {
		var fields map[string]any
		if err := json.Unmarshal(block.Content, &fields); err != nil {
			continue
		}
		switch block.Type {
		case store.BlockText:
			parts = appendString(parts, fields["text"])
		case store.BlockThread:
			if tweets, ok := fields["tweets"].([]any); ok {
				for _, tweet := range tweets {
					parts = appendString(parts, tweet)
				}
			}
		case store.BlockLink:
			parts = appendString(parts, fields["title"])
			parts = appendString(parts, fields["description"])
		}
	}
	return strings.Join(parts, "\n")
}

func appendString(parts []string, value any) []string {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return parts
	}
	return append(parts, strings.TrimSpace(s))
}

func snippet(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "…"
}

func decodeBlocks(raw []byte) []store.ContentBlock {
	var blocks []store.ContentBlock
	_ = json.Unmarshal(raw, &blocks)
	return blocks
}
