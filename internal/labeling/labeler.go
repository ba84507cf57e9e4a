// Package labeling names clusters from a handful of their articles.
package labeling

import (
	"context"
	"log/slog"
	"strings"
)

// Cap on articles sent to a labeler per cluster.
const MaxArticles = 5

type Article struct {
	Title       string
	Description string
}

type Label struct {
	Name     string
	Keywords []string
}

type Labeler interface {
	// Available reports whether GenerateLabel can be attempted at all.
	Available() bool
	GenerateLabel(ctx context.Context, articles []Article, maxWords int) (Label, error)
}

// Resolve asks primary for a label and falls back to the keyword table when
// primary is missing, unavailable, failing or returns an empty name. It
// always returns a non-empty name.
func Resolve(ctx context.Context, primary Labeler, articles []Article, maxWords int, logger *slog.Logger) Label {
	if len(articles) > MaxArticles {
		articles = articles[:MaxArticles]
	}
	if primary != nil && primary.Available() {
		label, err := primary.GenerateLabel(ctx, articles, maxWords)
		switch {
		case err != nil:
			logger.Warn("cluster label generation failed, using keywords", "error", err)
		case strings.TrimSpace(label.Name) != "":
			return label
		}
	}
	return Keywords(articles)
}

// cleanLabel trims quotes and whitespace, keeps at most maxWords words and
// upper-cases the result.
func cleanLabel(raw string, maxWords int) string {
	label := strings.TrimSpace(raw)
	label = strings.TrimSpace(strings.Trim(label, `"'`))
	words := strings.Fields(label)
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.ToUpper(strings.Join(words, " "))
}
