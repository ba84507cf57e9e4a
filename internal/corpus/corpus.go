// Package corpus loads the article collection the clustering service fits on.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"vnnews-clustering/internal/model"
)

var ErrEmptyCorpus = errors.New("corpus has no articles")

type Source interface {
	Load(ctx context.Context) ([]model.Article, error)
}

// JSONFile reads a JSON array of articles from disk.
type JSONFile struct {
	Path string
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{Path: path}
}

func (s *JSONFile) Load(ctx context.Context) ([]model.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file failed: %w", err)
	}
	defer f.Close()

	var articles []model.Article
	if err := json.NewDecoder(f).Decode(&articles); err != nil {
		return nil, fmt.Errorf("decode corpus file %s failed: %w", s.Path, err)
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCorpus, s.Path)
	}
	return articles, nil
}

type articleLister interface {
	ListAll(ctx context.Context) ([]model.Article, error)
}

// Database loads articles through a repository.
type Database struct {
	repo articleLister
}

func NewDatabase(repo articleLister) *Database {
	return &Database{repo: repo}
}

func (s *Database) Load(ctx context.Context) ([]model.Article, error) {
	articles, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("%w: articles table", ErrEmptyCorpus)
	}
	return articles, nil
}

// Static serves an in-memory corpus.
type Static []model.Article

func (s Static) Load(ctx context.Context) ([]model.Article, error) {
	if len(s) == 0 {
		return nil, ErrEmptyCorpus
	}
	out := make([]model.Article, len(s))
	copy(out, s)
	return out, nil
}
