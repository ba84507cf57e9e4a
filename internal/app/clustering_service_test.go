package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vnnews-clustering/internal/clustering"
	"vnnews-clustering/internal/corpus"
	"vnnews-clustering/internal/labeling"
	"vnnews-clustering/internal/logging"
	"vnnews-clustering/internal/model"
)

var topicTitles = []string{
	"Tăng trưởng kinh tế quý ba",
	"Đội tuyển thể thao giành huy chương",
	"Chuyện lạ ở làng",
	"Tuyển sinh đại học",
	"Tập trận NATO",
	"Mưa lớn kéo dài",
}

// topicCorpus builds n articles spread round-robin over len(topicTitles)
// topics. The content names the topic so oneHotEmbedder can place it.
func topicCorpus(n int) []model.Article {
	out := make([]model.Article, n)
	for i := range out {
		topic := i % len(topicTitles)
		out[i] = model.Article{
			URL:          fmt.Sprintf("https://example.vn/%d", i),
			Title:        topicTitles[topic],
			ContentClean: fmt.Sprintf("topic-%d", topic),
		}
	}
	out[7].Title = ""
	out[7].URLImg = ""
	return out
}

type oneHotEmbedder struct {
	dim   int
	calls atomic.Int32
}

func (e *oneHotEmbedder) Name() string { return "onehot" }

func (e *oneHotEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.calls.Add(1)
	out := make([][]float64, len(texts))
	for i, text := range texts {
		var topic int
		if _, err := fmt.Sscanf(text, "topic-%d", &topic); err != nil {
			return nil, err
		}
		v := make([]float64, e.dim)
		v[topic] = 1
		out[i] = v
	}
	return out, nil
}

// gatedSource blocks Load until release is closed and fails the first
// failFirst loads.
type gatedSource struct {
	articles  []model.Article
	release   chan struct{}
	failFirst int32
	loads     atomic.Int32
}

func (s *gatedSource) Load(ctx context.Context) ([]model.Article, error) {
	n := s.loads.Add(1)
	if s.release != nil {
		<-s.release
	}
	if n <= s.failFirst {
		return nil, errors.New("corpus unavailable")
	}
	return s.articles, nil
}

type recordedRuns struct {
	mu   sync.Mutex
	runs []model.ClusterRun
}

func (r *recordedRuns) Create(_ context.Context, run *model.ClusterRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

func newTestService(src corpus.Source, labeler labeling.Labeler, runs RunRecorder) *ClusteringService {
	return NewClusteringService(ClusteringDeps{
		Source:   src,
		Embedder: &oneHotEmbedder{dim: len(topicTitles)},
		Labeler:  labeler,
		Runs:     runs,
		Logger:   logging.Discard(),
	}, ClusteringOptions{
		CandidateK: []int{4, 5, 6},
		Seed:       42,
		SampleSeed: 42,
	})
}

func TestGetClusteredArticlesSixTopics(t *testing.T) {
	runs := &recordedRuns{}
	svc := newTestService(corpus.Static(topicCorpus(50)), nil, runs)

	clusters, err := svc.GetClusteredArticles(context.Background(), 5, 6)
	if err != nil {
		t.Fatalf("GetClusteredArticles: %v", err)
	}
	if len(clusters) != 6 {
		t.Fatalf("got %d clusters, want 6", len(clusters))
	}

	seenIDs := map[int]bool{}
	seenClusters := map[int]bool{}
	for _, c := range clusters {
		if seenClusters[c.ClusterInfo.ClusterID] {
			t.Fatalf("cluster %d returned twice", c.ClusterInfo.ClusterID)
		}
		seenClusters[c.ClusterInfo.ClusterID] = true
		if n := len(c.Articles); n == 0 || n > 5 || n != c.ClusterInfo.ArticleCount {
			t.Fatalf("cluster %d: %d articles, count %d", c.ClusterInfo.ClusterID, n, c.ClusterInfo.ArticleCount)
		}
		if c.ClusterInfo.ClusterName == "" {
			t.Fatalf("cluster %d has no name", c.ClusterInfo.ClusterID)
		}
		if c.ClusterInfo.Keywords == nil {
			t.Fatalf("cluster %d keywords must not be nil", c.ClusterInfo.ClusterID)
		}
		title := c.Articles[0].Title
		for i, a := range c.Articles {
			if a.ClusterID != c.ClusterInfo.ClusterID || a.ClusterName != c.ClusterInfo.ClusterName {
				t.Fatalf("article %+v does not match its group %+v", a, c.ClusterInfo)
			}
			if a.ID != c.ClusterInfo.ClusterID*1000+i || seenIDs[a.ID] {
				t.Fatalf("article id %d at position %d", a.ID, i)
			}
			seenIDs[a.ID] = true
			if a.URLImg == "" || a.Title == "" {
				t.Fatalf("article defaults missing: %+v", a)
			}
			if a.Title != title && a.Title != untitled && title != untitled {
				t.Fatalf("cluster %d mixes topics %q and %q", c.ClusterInfo.ClusterID, title, a.Title)
			}
		}
	}

	info, err := svc.ModelInfo()
	if err != nil {
		t.Fatalf("ModelInfo: %v", err)
	}
	if info.BestK != 6 || info.Clusters != 6 || info.Documents != 50 || info.EmbeddingDim != 6 || info.Noise != 0 {
		t.Fatalf("model info = %+v", info)
	}
	if len(info.SilhouetteScores) != 3 || info.MSE == nil || *info.MSE != 0 {
		t.Fatalf("model info scores = %+v, mse = %v", info.SilhouetteScores, info.MSE)
	}
	if len(runs.runs) != 1 || runs.runs[0].Generation != info.Generation || runs.runs[0].BestK != 6 {
		t.Fatalf("recorded runs = %+v", runs.runs)
	}
}

func TestClusterNamesFallBackToKeywords(t *testing.T) {
	unavailable := &countingLabeler{}
	svc := newTestService(corpus.Static(topicCorpus(30)), unavailable, nil)

	infos, err := svc.ClusterInfo(context.Background())
	if err != nil {
		t.Fatalf("ClusterInfo: %v", err)
	}
	if len(infos) != 6 {
		t.Fatalf("got %d clusters", len(infos))
	}
	names := map[string]bool{}
	total := 0
	for _, ci := range infos {
		if ci.ClusterName == "" {
			t.Fatalf("cluster %d has an empty name", ci.ClusterID)
		}
		names[ci.ClusterName] = true
		total += ci.ArticleCount
	}
	for _, want := range []string{"KINH TẾ", "THỂ THAO", "GIÁO DỤC", "NATO", labeling.GenericLabel} {
		if !names[want] {
			t.Errorf("missing fallback name %q in %v", want, names)
		}
	}
	if total != 30 {
		t.Fatalf("cluster sizes sum to %d", total)
	}
	if unavailable.calls.Load() != 0 {
		t.Fatalf("unavailable labeler was called %d times", unavailable.calls.Load())
	}
}

type countingLabeler struct {
	available bool
	calls     atomic.Int32
}

func (l *countingLabeler) Available() bool { return l.available }

func (l *countingLabeler) GenerateLabel(_ context.Context, articles []labeling.Article, _ int) (labeling.Label, error) {
	l.calls.Add(1)
	return labeling.Label{Name: "CHỦ ĐỀ " + articles[0].Title}, nil
}

func TestClusterLabelsAreMemoised(t *testing.T) {
	labeler := &countingLabeler{available: true}
	svc := newTestService(corpus.Static(topicCorpus(30)), labeler, nil)
	ctx := context.Background()

	if _, err := svc.ClusterInfo(ctx); err != nil {
		t.Fatalf("ClusterInfo: %v", err)
	}
	if _, err := svc.GetClusteredArticles(ctx, 3, 6); err != nil {
		t.Fatalf("GetClusteredArticles: %v", err)
	}
	if got := labeler.calls.Load(); got != 6 {
		t.Fatalf("labeler calls = %d, want one per cluster", got)
	}
}

func TestRefreshDropsPreviousLabels(t *testing.T) {
	labeler := &countingLabeler{available: true}
	svc := newTestService(corpus.Static(topicCorpus(30)), labeler, nil)
	ctx := context.Background()

	if _, err := svc.ClusterInfo(ctx); err != nil {
		t.Fatalf("ClusterInfo: %v", err)
	}
	if got := svc.labels.ItemCount(); got != 6 {
		t.Fatalf("memoised names = %d, want 6", got)
	}
	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := svc.labels.ItemCount(); got != 0 {
		t.Fatalf("memoised names after refresh = %d, want 0", got)
	}
	if _, err := svc.ClusterInfo(ctx); err != nil {
		t.Fatalf("ClusterInfo: %v", err)
	}
	if got := labeler.calls.Load(); got != 12 {
		t.Fatalf("labeler calls = %d, want 6 per generation", got)
	}
}

func TestGetClusterByID(t *testing.T) {
	svc := newTestService(corpus.Static(topicCorpus(50)), nil, nil)
	ctx := context.Background()

	c, err := svc.GetClusterByID(ctx, 0, 50)
	if err != nil {
		t.Fatalf("GetClusterByID: %v", err)
	}
	if len(c.Articles) < 8 || c.ClusterInfo.ArticleCount != len(c.Articles) {
		t.Fatalf("cluster 0: %d articles, count %d", len(c.Articles), c.ClusterInfo.ArticleCount)
	}

	if _, err := svc.GetClusterByID(ctx, 99, 5); !errors.Is(err, ErrClusterNotFound) {
		t.Fatalf("err = %v, want ErrClusterNotFound", err)
	}
	if _, err := svc.GetClusterByID(ctx, -1, 5); !errors.Is(err, ErrClusterNotFound) {
		t.Fatalf("noise id: err = %v, want ErrClusterNotFound", err)
	}
}

func TestQueryBounds(t *testing.T) {
	svc := newTestService(corpus.Static(topicCorpus(20)), nil, nil)
	ctx := context.Background()
	tests := []struct {
		name         string
		limit, count int
	}{
		{"limit zero", 0, 3},
		{"limit too high", 21, 3},
		{"clusters zero", 5, 0},
		{"clusters too high", 5, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.GetClusteredArticles(ctx, tt.limit, tt.count); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
	if _, err := svc.GetClusterByID(ctx, 0, 51); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if svc.Ready() {
		t.Fatal("invalid queries must not trigger a fit")
	}
}

func TestConcurrentFirstUseFitsOnce(t *testing.T) {
	src := &gatedSource{articles: topicCorpus(30), release: make(chan struct{})}
	svc := newTestService(src, nil, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetClusteredArticles(context.Background(), 2, 3)
			errs <- err
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.loads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := svc.ModelInfo(); !errors.Is(err, ErrWarmingUp) {
		t.Fatalf("ModelInfo during fit: err = %v, want ErrWarmingUp", err)
	}
	close(src.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("caller failed: %v", err)
		}
	}
	if got := src.loads.Load(); got != 1 {
		t.Fatalf("corpus loaded %d times, want 1", got)
	}
}

func TestCallerTimeoutDoesNotCancelFit(t *testing.T) {
	src := &gatedSource{articles: topicCorpus(30), release: make(chan struct{})}
	svc := newTestService(src, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := svc.GetClusteredArticles(ctx, 2, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	close(src.release)
	if err := svc.WarmUp(context.Background()); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if got := src.loads.Load(); got != 1 {
		t.Fatalf("corpus loaded %d times, want the abandoned fit to be reused", got)
	}
}

func TestFailedFitLeavesNoStateAndRetries(t *testing.T) {
	src := &gatedSource{articles: topicCorpus(30), failFirst: 1}
	svc := newTestService(src, nil, nil)
	ctx := context.Background()

	if _, err := svc.GetClusteredArticles(ctx, 2, 2); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if svc.Ready() {
		t.Fatal("failed fit must not publish state")
	}
	if _, err := svc.ModelInfo(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("ModelInfo: err = %v, want ErrNotReady", err)
	}

	if _, err := svc.GetClusteredArticles(ctx, 2, 2); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := src.loads.Load(); got != 2 {
		t.Fatalf("loads = %d, want 2", got)
	}
}

func TestRefreshSwapsGeneration(t *testing.T) {
	svc := newTestService(corpus.Static(topicCorpus(30)), nil, nil)
	ctx := context.Background()

	first, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	second, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if first == second {
		t.Fatalf("generation unchanged: %s", first)
	}
	info, _ := svc.ModelInfo()
	if info.Generation != second {
		t.Fatalf("served generation %s, want %s", info.Generation, second)
	}
}

func TestCandidatesTrimmedToCorpusSize(t *testing.T) {
	svc := newTestService(corpus.Static(topicCorpus(4)), nil, nil)
	_, err := svc.GetClusteredArticles(context.Background(), 2, 2)
	if !errors.Is(err, clustering.ErrInvalidK) {
		t.Fatalf("err = %v, want ErrInvalidK", err)
	}
}

func TestEmptyCorpus(t *testing.T) {
	svc := newTestService(corpus.Static(nil), nil, nil)
	_, err := svc.GetClusteredArticles(context.Background(), 2, 2)
	if !errors.Is(err, corpus.ErrEmptyCorpus) || !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady wrapping ErrEmptyCorpus", err)
	}
}

func TestDensityStrategyExcludesNoise(t *testing.T) {
	articles := topicCorpus(30)
	// Two extra loners, each on a fresh axis.
	articles = append(articles,
		model.Article{Title: "loner a", ContentClean: "topic-6"},
		model.Article{Title: "loner b", ContentClean: "topic-7"},
	)
	svc := NewClusteringService(ClusteringDeps{
		Source:   corpus.Static(articles),
		Embedder: &oneHotEmbedder{dim: 8},
		Logger:   logging.Discard(),
	}, ClusteringOptions{Strategy: clustering.Density, MinClusterSize: 3})

	infos, err := svc.ClusterInfo(context.Background())
	if err != nil {
		t.Fatalf("ClusterInfo: %v", err)
	}
	for _, ci := range infos {
		if ci.ClusterID < 0 {
			t.Fatalf("noise listed as a cluster: %+v", ci)
		}
	}
	info, _ := svc.ModelInfo()
	if info.Noise < 2 {
		t.Fatalf("noise = %d, want the loners marked as noise", info.Noise)
	}
	clusters, err := svc.GetClusteredArticles(context.Background(), 20, 10)
	if err != nil {
		t.Fatalf("GetClusteredArticles: %v", err)
	}
	for _, c := range clusters {
		for _, a := range c.Articles {
			if a.Title == "loner a" || a.Title == "loner b" {
				t.Fatalf("noise article sampled: %+v", a)
			}
		}
	}
}
