package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"vnnews-clustering/internal/app"
	"vnnews-clustering/internal/clustering"
)

type fakeSource struct{}

func (fakeSource) ModelInfo() (app.ModelInfo, error) {
	mse := 0.125
	return app.ModelInfo{
		Generation:       "gen-1",
		Strategy:         "partitional",
		Embedder:         "onehot",
		BestK:            3,
		Clusters:         2,
		Documents:        10,
		SilhouetteScores: []clustering.CandidateScore{{K: 2, Score: 0.5}, {K: 3, Score: 0.75}},
		MSE:              &mse,
		FittedAt:         time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (fakeSource) ClusterInfo(context.Context) ([]app.ClusterInfo, error) {
	return []app.ClusterInfo{
		{ClusterID: 0, ClusterName: "KINH TẾ", ArticleCount: 6, Keywords: []string{"kinh tế"}},
		{ClusterID: 1, ClusterName: "THỂ THAO", ArticleCount: 4},
	}, nil
}

func (fakeSource) GetClusterByID(_ context.Context, id, limit int) (app.ArticleCluster, error) {
	titles := map[int][]string{0: {"Giá vàng tăng", "Lãi suất <b>giảm</b>"}, 1: {"Đội tuyển thắng"}}[id]
	c := app.ArticleCluster{ClusterInfo: app.ClusterInfo{ClusterID: id}}
	for _, t := range titles[:min(limit, len(titles))] {
		c.Articles = append(c.Articles, app.ClusteredArticle{Title: t})
	}
	return c, nil
}

func TestReportRendersClusters(t *testing.T) {
	info, clusters, err := Collect(context.Background(), fakeSource{}, 5)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	md := Markdown(info, clusters)
	for _, want := range []string{"### 0. KINH TẾ (6 articles)", "- Giá vàng tăng", "| 3 | 0.7500 **best** |", "| MSE | 0.1250 |"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	page, err := HTML(md)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if !strings.Contains(page, "<table>") || !strings.Contains(page, "THỂ THAO") {
		t.Fatalf("page missing content:\n%s", page)
	}
	if strings.Contains(page, "<b>giảm</b>") {
		t.Fatal("raw html from titles must not reach the page")
	}
}
