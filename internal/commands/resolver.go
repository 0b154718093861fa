package commands

import (
	"context"
	"fmt"

	"github.com/latoulicious/nekobeat/internal/guild"
	"github.com/latoulicious/nekobeat/pkg/queue"
	"github.com/latoulicious/nekobeat/pkg/youtube"
)

// Lookup resolves YouTube metadata
type Lookup interface {
	Resolve(ctx context.Context, locator string) (youtube.Metadata, error)
	Search(ctx context.Context, query string) (youtube.Metadata, error)
}

// YouTubeResolver turns a link or a search query into a queue track
type YouTubeResolver struct {
	lookup Lookup
}

var _ guild.Resolver = (*YouTubeResolver)(nil)

// NewYouTubeResolver creates a resolver over lookup
func NewYouTubeResolver(lookup Lookup) *YouTubeResolver {
	return &YouTubeResolver{lookup: lookup}
}

// Resolve looks up query directly when it is a URL and searches for it otherwise
func (r *YouTubeResolver) Resolve(ctx context.Context, query, requestedBy string) (*queue.Track, error) {
	var (
		meta youtube.Metadata
		err  error
	)
	if youtube.IsURL(query) {
		meta, err = r.lookup.Resolve(ctx, query)
	} else {
		meta, err = r.lookup.Search(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	if meta.URL == "" {
		return nil, fmt.Errorf("no result for %q", query)
	}

	title := meta.Title
	if title == "" {
		title = meta.URL
	}
	return queue.NewTrack(meta.URL, title, requestedBy, meta.Duration), nil
}
