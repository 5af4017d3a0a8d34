package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"adlytics/internal/httpclient"
)

// FeedItem is one entry of a normalized RSS, Atom or JSON Feed document.
type FeedItem struct {
	GUID       string     `json:"guid,omitempty"`
	Title      string     `json:"title"`
	Link       string     `json:"link,omitempty"`
	Published  *time.Time `json:"published,omitempty"`
	Categories []string   `json:"categories,omitempty"`
}

// FeedDoc is the JSON produced by the feed normalizer.
type FeedDoc struct {
	Title string     `json:"title"`
	Type  string     `json:"type"`
	Items []FeedItem `json:"items"`
}

// Feed returns a normalizer that parses a syndication feed body (any content
// type) into a FeedDoc. limit > 0 keeps only the first limit items.
func Feed(limit int) httpclient.Normalizer {
	return httpclient.NormalizerFunc(func(_ context.Context, b httpclient.Body) (httpclient.Body, error) {
		f, err := gofeed.NewParser().ParseString(b.Text())
		if err != nil {
			return httpclient.Body{}, fmt.Errorf("feed: %w", err)
		}
		doc := FeedDoc{Title: f.Title, Type: f.FeedType, Items: make([]FeedItem, 0, len(f.Items))}
		for _, it := range f.Items {
			if limit > 0 && len(doc.Items) == limit {
				break
			}
			pub := it.PublishedParsed
			if pub == nil {
				pub = it.UpdatedParsed
			}
			doc.Items = append(doc.Items, FeedItem{
				GUID:       it.GUID,
				Title:      it.Title,
				Link:       it.Link,
				Published:  pub,
				Categories: it.Categories,
			})
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return httpclient.Body{}, err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return httpclient.Body{}, err
		}
		return httpclient.Body{Status: b.Status, Raw: raw, JSON: v}, nil
	})
}
