package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"gonum.org/v1/gonum/mat"

	"vnnews-clustering/internal/clustering"
	"vnnews-clustering/internal/corpus"
	"vnnews-clustering/internal/embedding"
	"vnnews-clustering/internal/labeling"
	"vnnews-clustering/internal/model"
)

var (
	ErrNotReady        = errors.New("clustering model is not ready")
	ErrWarmingUp       = errors.New("clustering model is warming up")
	ErrInvalidInput    = errors.New("invalid input")
	ErrClusterNotFound = errors.New("cluster not found")
)

type ClusteringOptions struct {
	Strategy       clustering.Kind
	CandidateK     []int
	Seed           uint64
	SampleSeed     uint64
	MinClusterSize int
	LabelMaxWords  int
	LabelArticles  int
	WarmUpClusters int
	WarmUpLimit    int
}

func (o ClusteringOptions) withDefaults() ClusteringOptions {
	if o.Strategy == "" {
		o.Strategy = clustering.Partitional
	}
	if len(o.CandidateK) == 0 {
		for k := 8; k < 20; k++ {
			o.CandidateK = append(o.CandidateK, k)
		}
	}
	if o.MinClusterSize <= 0 {
		o.MinClusterSize = clustering.DefaultMinClusterSize
	}
	if o.LabelMaxWords <= 0 {
		o.LabelMaxWords = 5
	}
	if o.LabelArticles <= 0 || o.LabelArticles > labeling.MaxArticles {
		o.LabelArticles = labeling.MaxArticles
	}
	if o.WarmUpClusters <= 0 {
		o.WarmUpClusters = 6
	}
	if o.WarmUpLimit <= 0 {
		o.WarmUpLimit = 4
	}
	return o
}

// RunRecorder persists an audit row per completed fit.
type RunRecorder interface {
	Create(ctx context.Context, run *model.ClusterRun) error
}

// ResponseCache is a shared cache for rendered responses.
type ResponseCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// fittedState is one immutable fit: articles, their vectors and labels are
// aligned by row.
type fittedState struct {
	generation string
	articles   []model.Article
	x          *mat.Dense
	labels     []int
	clusterIDs []int
	sizes      map[int]int
	strategy   clustering.Kind
	selection  clustering.Selection
	noise      int
	mse        float64
	mseOK      bool
	duration   time.Duration
	fittedAt   time.Time
}

type fitCall struct {
	done  chan struct{}
	state *fittedState
	err   error
}

// ClusteringService owns the process-wide fitted model. Reads go through an
// atomic pointer; fits are collapsed so at most one runs at a time.
type ClusteringService struct {
	source   corpus.Source
	embedder embedding.Embedder
	labeler  labeling.Labeler
	cache    ResponseCache
	runs     RunRecorder
	logger   *slog.Logger
	opts     ClusteringOptions

	labels *gocache.Cache
	state  atomic.Pointer[fittedState]

	mu       sync.Mutex
	inflight *fitCall
}

type ClusteringDeps struct {
	Source   corpus.Source
	Embedder embedding.Embedder
	// Labeler, Cache and Runs are optional.
	Labeler labeling.Labeler
	Cache   ResponseCache
	Runs    RunRecorder
	Logger  *slog.Logger
}

func NewClusteringService(deps ClusteringDeps, opts ClusteringOptions) *ClusteringService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ClusteringService{
		source:   deps.Source,
		embedder: deps.Embedder,
		labeler:  deps.Labeler,
		cache:    deps.Cache,
		runs:     deps.Runs,
		logger:   logger.With("component", "clustering"),
		opts:     opts.withDefaults(),
		labels:   gocache.New(6*time.Hour, 10*time.Minute),
	}
}

// Ready reports whether a fitted model is being served.
func (s *ClusteringService) Ready() bool {
	return s.state.Load() != nil
}

// WarmUp fits the model if needed and pre-renders one sample so labels are
// memoised before the first request.
func (s *ClusteringService) WarmUp(ctx context.Context) error {
	started := time.Now()
	if _, err := s.current(ctx); err != nil {
		return err
	}
	clusters, err := s.GetClusteredArticles(ctx, s.opts.WarmUpLimit, s.opts.WarmUpClusters)
	if err != nil {
		return err
	}
	s.logger.Info("clustering warm-up done", "clusters", len(clusters), "elapsed", time.Since(started))
	return nil
}

// Refresh reloads the corpus and refits. The previous model keeps serving
// until the new one is swapped in. A fit already in flight is joined.
func (s *ClusteringService) Refresh(ctx context.Context) (string, error) {
	st, err := s.wait(ctx, s.startFit())
	if err != nil {
		return "", err
	}
	return st.generation, nil
}

// current returns the fitted state, starting or joining a fit when none
// exists yet and waiting for it within ctx.
func (s *ClusteringService) current(ctx context.Context) (*fittedState, error) {
	if st := s.state.Load(); st != nil {
		return st, nil
	}
	return s.wait(ctx, s.startFit())
}

// snapshot returns the fitted state without waiting.
func (s *ClusteringService) snapshot() (*fittedState, error) {
	if st := s.state.Load(); st != nil {
		return st, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		return nil, ErrWarmingUp
	}
	return nil, ErrNotReady
}

func (s *ClusteringService) startFit() *fitCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		return s.inflight
	}
	call := &fitCall{done: make(chan struct{})}
	s.inflight = call

	// The fit outlives any single caller; callers only bound their wait.
	go func() {
		st, err := s.fit(context.Background())
		if err != nil {
			s.logger.Error("clustering fit failed", "error", err)
		} else {
			s.state.Store(st)
			// names are keyed by generation; older ones are unreachable now
			s.labels.Flush()
		}
		call.state, call.err = st, err

		s.mu.Lock()
		s.inflight = nil
		s.mu.Unlock()
		close(call.done)
	}()
	return call
}

func (s *ClusteringService) wait(ctx context.Context, call *fitCall) (*fittedState, error) {
	select {
	case <-call.done:
		if call.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotReady, call.err)
		}
		return call.state, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ClusteringService) fit(ctx context.Context) (*fittedState, error) {
	started := time.Now()
	articles, err := s.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus failed: %w", err)
	}
	if len(articles) == 0 {
		return nil, corpus.ErrEmptyCorpus
	}

	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = a.ContentClean
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed corpus failed: %w", err)
	}
	if len(vectors) != len(articles) {
		return nil, fmt.Errorf("%w: %d vectors for %d articles", clustering.ErrDimensionMismatch, len(vectors), len(articles))
	}
	x, err := clustering.FromRows(vectors)
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus embedded", "articles", len(articles), "embedder", s.embedder.Name(), "elapsed", time.Since(started))

	var selection clustering.Selection
	if s.opts.Strategy != clustering.Density {
		candidates := usableCandidates(s.opts.CandidateK, len(articles))
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: no candidate k in %v fits %d articles", clustering.ErrInvalidK, s.opts.CandidateK, len(articles))
		}
		selection, err = clustering.SelectK(ctx, x, candidates, s.opts.Seed)
		if err != nil {
			return nil, fmt.Errorf("select k failed: %w", err)
		}
		s.logger.Info("cluster count selected", "best_k", selection.BestK, "candidates", candidates)
	}

	labels, err := clustering.Fit(ctx, x, s.opts.Strategy, clustering.Options{
		K:              selection.BestK,
		Seed:           s.opts.Seed,
		MinClusterSize: s.opts.MinClusterSize,
	})
	if err != nil {
		return nil, err
	}

	st := &fittedState{
		generation: uuid.NewString(),
		articles:   articles,
		x:          x,
		labels:     labels,
		clusterIDs: clustering.DistinctLabels(labels),
		sizes:      make(map[int]int),
		strategy:   s.opts.Strategy,
		selection:  selection,
		fittedAt:   time.Now(),
	}
	for _, l := range labels {
		if l < 0 {
			st.noise++
			continue
		}
		st.sizes[l]++
	}
	st.mse, st.mseOK = clustering.MeanSquaredError(x, labels)
	st.duration = time.Since(started)

	s.logger.Info("clustering fit done",
		"generation", st.generation,
		"strategy", st.strategy,
		"clusters", len(st.clusterIDs),
		"noise", st.noise,
		"elapsed", st.duration,
	)
	s.recordRun(ctx, st)
	return st, nil
}

func usableCandidates(candidates []int, n int) []int {
	var out []int
	for _, k := range candidates {
		if k >= 2 && k < n {
			out = append(out, k)
		}
	}
	return out
}

func (s *ClusteringService) recordRun(ctx context.Context, st *fittedState) {
	if s.runs == nil {
		return
	}
	run := &model.ClusterRun{
		Generation: st.generation,
		Strategy:   string(st.strategy),
		BestK:      st.selection.BestK,
		Scores:     formatScores(st.selection.Scores),
		Documents:  len(st.articles),
		Clusters:   len(st.clusterIDs),
		Noise:      st.noise,
		DurationMS: st.duration.Milliseconds(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Warn("record cluster run failed", "generation", st.generation, "error", err)
	}
}
