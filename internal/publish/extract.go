package publish

import (
	"encoding/json"
	"strings"

	"inkwell/api/internal/store"
)

type textContent struct {
	Text string `json:"text"`
}

type threadContent struct {
	Tweets []string `json:"tweets"`
}

type linkContent struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
}

type imageContent struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// ExtractMessage selects the blocks relevant to platform. It has no side
// effects; identical input always yields identical output.
func ExtractMessage(blocks []store.ContentBlock, platform string) (Message, error) {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case PlatformTwitter:
		return ExtractX(blocks)
	case PlatformLinkedIn:
		return ExtractLinkedIn(blocks)
	default:
		return Message{}, ErrUnsupportedPlatform
	}
}

// ExtractX flattens every thread block's tweets in block order. Without any
// thread block the first text block becomes a single-post thread.
func ExtractX(blocks []store.ContentBlock) (Message, error) {
	var tweets []string
	for _, block := range blocks {
		if block.Type != store.BlockThread {
			continue
		}
		var content threadContent
		if err := json.Unmarshal(block.Content, &content); err != nil {
			continue
		}
		for _, tweet := range content.Tweets {
			if strings.TrimSpace(tweet) != "" {
				tweets = append(tweets, tweet)
			}
		}
	}
	if len(tweets) > 0 {
		return Message{Kind: KindThread, Tweets: tweets}, nil
	}

	if text, ok := firstText(blocks); ok {
		return Message{Kind: KindThread, Tweets: []string{text}}, nil
	}
	return Message{}, ErrNoContent
}

// ExtractLinkedIn prefers a link block (article share) over a text block.
func ExtractLinkedIn(blocks []store.ContentBlock) (Message, error) {
	for _, block := range blocks {
		if block.Type != store.BlockLink {
			continue
		}
		var content linkContent
		if err := json.Unmarshal(block.Content, &content); err != nil || strings.TrimSpace(content.URL) == "" {
			continue
		}
		return Message{
			Kind: KindArticle,
			Article: &Article{
				URL:         content.URL,
				Title:       content.Title,
				Description: content.Description,
				Thumbnail:   content.Thumbnail,
			},
		}, nil
	}

	text, ok := firstText(blocks)
	if !ok {
		return Message{}, ErrNoContent
	}
	msg := Message{Kind: KindText, Text: text}
	if image, ok := firstImage(blocks); ok {
		msg.HasImage = true
		msg.ImageURL = image.URL
	}
	return msg, nil
}

func firstText(blocks []store.ContentBlock) (string, bool) {
	for _, block := range blocks {
		if block.Type != store.BlockText {
			continue
		}
		var content textContent
		if err := json.Unmarshal(block.Content, &content); err != nil {
			continue
		}
		if strings.TrimSpace(content.Text) == "" {
			continue
		}
		return content.Text, true
	}
	return "", false
}

func firstImage(blocks []store.ContentBlock) (imageContent, bool) {
	for _, block := range blocks {
		if block.Type != store.BlockImage {
			continue
		}
		var content imageContent
		_ = json.Unmarshal(block.Content, &content)
		return content, true
	}
	return imageContent{}, false
}
