package app

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"vnnews-clustering/internal/clustering"
	"vnnews-clustering/internal/labeling"
	"vnnews-clustering/internal/model"
)

const (
	placeholderImage = "https://via.placeholder.com/120x96?text=📰&bg=f3f4f6"
	untitled         = "Untitled"
)

type ClusterInfo struct {
	ClusterID    int      `json:"cluster_id"`
	ClusterName  string   `json:"cluster_name"`
	ArticleCount int      `json:"article_count"`
	Keywords     []string `json:"keywords"`
}

type ClusteredArticle struct {
	ID          int                   `json:"id"`
	URL         string                `json:"url"`
	URLImg      string                `json:"url_img"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Content     string                `json:"content"`
	Metadata    model.ArticleMetadata `json:"metadata"`
	ClusterID   int                   `json:"cluster_id"`
	ClusterName string                `json:"cluster_name"`
}

type ArticleCluster struct {
	ClusterInfo ClusterInfo        `json:"cluster_info"`
	Articles    []ClusteredArticle `json:"articles"`
}

type ModelInfo struct {
	Generation       string                      `json:"generation"`
	Strategy         string                      `json:"strategy"`
	Embedder         string                      `json:"embedder"`
	BestK            int                         `json:"best_k"`
	Clusters         int                         `json:"n_clusters"`
	Documents        int                         `json:"n_documents"`
	EmbeddingDim     int                         `json:"embedding_dim"`
	Noise            int                         `json:"noise"`
	SilhouetteScores []clustering.CandidateScore `json:"silhouette_scores"`
	MSE              *float64                    `json:"mse,omitempty"`
	FitDurationMS    int64                       `json:"fit_duration_ms"`
	FittedAt         time.Time                   `json:"fitted_at"`
	LabelerAvailable bool                        `json:"labeler_available"`
}

// GetClusteredArticles samples maxClusters clusters and returns up to
// limitPerCluster representative articles of each, labelled.
func (s *ClusteringService) GetClusteredArticles(ctx context.Context, limitPerCluster, maxClusters int) ([]ArticleCluster, error) {
	if limitPerCluster < 1 || limitPerCluster > 20 {
		return nil, fmt.Errorf("%w: limit_per_cluster must be in [1,20]", ErrInvalidInput)
	}
	if maxClusters < 1 || maxClusters > 10 {
		return nil, fmt.Errorf("%w: max_clusters must be in [1,10]", ErrInvalidInput)
	}
	st, err := s.current(ctx)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s:sample:%d:%d:%d", st.generation, s.opts.SampleSeed, limitPerCluster, maxClusters)
	var out []ArticleCluster
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}

	picked := clustering.Sample(st.x, st.labels, indexRange(len(st.articles)), maxClusters, limitPerCluster, s.opts.SampleSeed)
	out = make([]ArticleCluster, 0, maxClusters)
	pos := make(map[int]int)
	for _, a := range picked {
		i, ok := pos[a.ClusterID]
		if !ok {
			i = len(out)
			pos[a.ClusterID] = i
			out = append(out, ArticleCluster{ClusterInfo: ClusterInfo{ClusterID: a.ClusterID}})
		}
		out[i].Articles = append(out[i].Articles, s.articleDTO(st, a.Document, a.ClusterID, len(out[i].Articles)))
	}
	for i := range out {
		s.nameCluster(ctx, st, &out[i])
	}

	s.cacheSet(ctx, key, out)
	return out, nil
}

// GetClusterByID returns up to limit members of one cluster, nearest to its
// centroid first.
func (s *ClusteringService) GetClusterByID(ctx context.Context, clusterID, limit int) (ArticleCluster, error) {
	if limit < 1 || limit > 50 {
		return ArticleCluster{}, fmt.Errorf("%w: limit must be in [1,50]", ErrInvalidInput)
	}
	st, err := s.current(ctx)
	if err != nil {
		return ArticleCluster{}, err
	}
	if _, ok := slices.BinarySearch(st.clusterIDs, clusterID); !ok {
		return ArticleCluster{}, fmt.Errorf("%w: %d", ErrClusterNotFound, clusterID)
	}

	key := fmt.Sprintf("%s:cluster:%d:%d", st.generation, clusterID, limit)
	var out ArticleCluster
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}

	out = ArticleCluster{ClusterInfo: ClusterInfo{ClusterID: clusterID}}
	for i, idx := range clustering.Nearest(st.x, st.labels, clusterID, limit) {
		out.Articles = append(out.Articles, s.articleDTO(st, idx, clusterID, i))
	}
	s.nameCluster(ctx, st, &out)

	s.cacheSet(ctx, key, out)
	return out, nil
}

// ClusterInfo lists every cluster with its full size and name.
func (s *ClusteringService) ClusterInfo(ctx context.Context) ([]ClusterInfo, error) {
	st, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ClusterInfo, 0, len(st.clusterIDs))
	for _, cid := range st.clusterIDs {
		label := s.clusterLabel(ctx, st, cid)
		out = append(out, ClusterInfo{
			ClusterID:    cid,
			ClusterName:  label.Name,
			ArticleCount: st.sizes[cid],
			Keywords:     nonNil(label.Keywords),
		})
	}
	return out, nil
}

// ModelInfo describes the served fit. It does not wait for a fit in flight.
func (s *ClusteringService) ModelInfo() (ModelInfo, error) {
	st, err := s.snapshot()
	if err != nil {
		return ModelInfo{}, err
	}
	_, dim := st.x.Dims()
	info := ModelInfo{
		Generation:       st.generation,
		Strategy:         string(st.strategy),
		Embedder:         s.embedder.Name(),
		BestK:            st.selection.BestK,
		Clusters:         len(st.clusterIDs),
		Documents:        len(st.articles),
		EmbeddingDim:     dim,
		Noise:            st.noise,
		SilhouetteScores: nonNil(st.selection.Scores),
		FitDurationMS:    st.duration.Milliseconds(),
		FittedAt:         st.fittedAt,
		LabelerAvailable: s.labeler != nil && s.labeler.Available(),
	}
	if st.mseOK {
		mse := st.mse
		info.MSE = &mse
	}
	return info, nil
}

func (s *ClusteringService) articleDTO(st *fittedState, idx, clusterID, pos int) ClusteredArticle {
	a := st.articles[idx]
	dto := ClusteredArticle{
		ID:          clusterID*1000 + pos,
		URL:         a.URL,
		URLImg:      a.URLImg,
		Title:       a.Title,
		Description: a.Description,
		Content:     a.Content,
		Metadata:    a.Metadata,
		ClusterID:   clusterID,
	}
	if dto.URLImg == "" {
		dto.URLImg = placeholderImage
	}
	if dto.Title == "" {
		dto.Title = untitled
	}
	return dto
}

func (s *ClusteringService) nameCluster(ctx context.Context, st *fittedState, c *ArticleCluster) {
	label := s.clusterLabel(ctx, st, c.ClusterInfo.ClusterID)
	c.ClusterInfo.ClusterName = label.Name
	c.ClusterInfo.Keywords = nonNil(label.Keywords)
	c.ClusterInfo.ArticleCount = len(c.Articles)
	for i := range c.Articles {
		c.Articles[i].ClusterName = label.Name
	}
}

// clusterLabel names a cluster from its articles nearest the centroid. Names
// are memoised per fit generation.
func (s *ClusteringService) clusterLabel(ctx context.Context, st *fittedState, cid int) labeling.Label {
	key := fmt.Sprintf("%s:%d", st.generation, cid)
	if v, ok := s.labels.Get(key); ok {
		return v.(labeling.Label)
	}

	var arts []labeling.Article
	for _, idx := range clustering.Nearest(st.x, st.labels, cid, s.opts.LabelArticles) {
		a := st.articles[idx]
		arts = append(arts, labeling.Article{Title: a.Title, Description: a.Description})
	}
	label := labeling.Resolve(ctx, s.labeler, arts, s.opts.LabelMaxWords, s.logger)
	s.labels.Set(key, label, gocache.DefaultExpiration)
	return label
}

func (s *ClusteringService) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.logger.Warn("response cache read failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (s *ClusteringService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger.Warn("response cache write failed", "key", key, "error", err)
	}
}

func formatScores(scores []clustering.CandidateScore) string {
	raw, err := json.Marshal(scores)
	if err != nil {
		return ""
	}
	return string(raw)
}

func indexRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
