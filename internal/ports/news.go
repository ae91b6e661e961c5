package ports

import (
	"context"
	"time"

	"newstrader/internal/domain"
)

// NewsSource fetches raw headlines from external feeds.
type NewsSource interface {
	// FetchSince returns items published after the given time, filtered to
	// the configured ticker whitelist and deduplicated by cluster ID.
	FetchSince(ctx context.Context, since time.Time) ([]*domain.NewsItem, error)
}

// Classifier turns a raw news item into a structured event card.
type Classifier interface {
	// Classify analyses a headline and snippet. It returns
	// ErrClassifierFailed (wrapped) when the model output cannot be
	// validated after retries.
	Classify(ctx context.Context, item *domain.NewsItem) (*domain.EventCard, error)
}
