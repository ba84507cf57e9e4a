// Package report renders a human-readable summary of the served clustering.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"vnnews-clustering/internal/app"
)

// Source is the read side of the clustering service used by reports.
type Source interface {
	ModelInfo() (app.ModelInfo, error)
	ClusterInfo(ctx context.Context) ([]app.ClusterInfo, error)
	GetClusterByID(ctx context.Context, clusterID, limit int) (app.ArticleCluster, error)
}

type Cluster struct {
	Info   app.ClusterInfo
	Titles []string
}

// Collect gathers model info and the titles nearest each centroid.
func Collect(ctx context.Context, src Source, titlesPerCluster int) (app.ModelInfo, []Cluster, error) {
	info, err := src.ModelInfo()
	if err != nil {
		return app.ModelInfo{}, nil, err
	}
	infos, err := src.ClusterInfo(ctx)
	if err != nil {
		return app.ModelInfo{}, nil, err
	}
	clusters := make([]Cluster, 0, len(infos))
	for _, ci := range infos {
		c, err := src.GetClusterByID(ctx, ci.ClusterID, titlesPerCluster)
		if err != nil {
			return app.ModelInfo{}, nil, fmt.Errorf("load cluster %d failed: %w", ci.ClusterID, err)
		}
		cl := Cluster{Info: ci}
		for _, a := range c.Articles {
			cl.Titles = append(cl.Titles, a.Title)
		}
		clusters = append(clusters, cl)
	}
	return info, clusters, nil
}

func Markdown(info app.ModelInfo, clusters []Cluster) string {
	var b strings.Builder
	b.WriteString("# Clustering report\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Generation | `%s` |\n", info.Generation)
	fmt.Fprintf(&b, "| Strategy | %s |\n", info.Strategy)
	fmt.Fprintf(&b, "| Embedder | %s |\n", info.Embedder)
	fmt.Fprintf(&b, "| Documents | %d |\n", info.Documents)
	fmt.Fprintf(&b, "| Clusters | %d |\n", info.Clusters)
	fmt.Fprintf(&b, "| Noise | %d |\n", info.Noise)
	if info.MSE != nil {
		fmt.Fprintf(&b, "| MSE | %.4f |\n", *info.MSE)
	}
	fmt.Fprintf(&b, "| Fitted at | %s (%d ms) |\n\n", info.FittedAt.Format("2006-01-02 15:04:05"), info.FitDurationMS)

	if len(info.SilhouetteScores) > 0 {
		b.WriteString("## Silhouette by k\n\n| k | score |\n|---|---|\n")
		for _, s := range info.SilhouetteScores {
			marker := ""
			if s.K == info.BestK {
				marker = " **best**"
			}
			fmt.Fprintf(&b, "| %d | %.4f%s |\n", s.K, s.Score, marker)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Clusters\n\n")
	for _, c := range clusters {
		fmt.Fprintf(&b, "### %d. %s (%d articles)\n\n", c.Info.ClusterID, c.Info.ClusterName, c.Info.ArticleCount)
		if len(c.Info.Keywords) > 0 {
			fmt.Fprintf(&b, "Keywords: %s\n\n", strings.Join(c.Info.Keywords, ", "))
		}
		for _, t := range c.Titles {
			fmt.Fprintf(&b, "- %s\n", escape(t))
		}
		b.WriteString("\n")
	}
	return b.String()
}

var mdEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return mdEscaper.Replace(s)
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="vi">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>body{font-family:system-ui,sans-serif;max-width:960px;margin:2rem auto;padding:0 1rem}table{border-collapse:collapse}td,th{border:1px solid #ddd;padding:.25rem .5rem}</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders markdown into a standalone page. Raw HTML in the input is
// dropped.
func HTML(markdown string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("render markdown failed: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{Title: "Clustering report", Body: template.HTML(body.String())})
	if err != nil {
		return "", fmt.Errorf("render report page failed: %w", err)
	}
	return out.String(), nil
}
