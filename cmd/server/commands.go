package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vnnews-clustering/internal/corpus"
	"vnnews-clustering/internal/mcp"
	"vnnews-clustering/internal/report"
)

var (
	clusterLimit int
	clusterCount int

	reportOut      string
	reportTitles   int
	reportMarkdown bool

	importPath string
)

func init() {
	clusterCmd.Flags().IntVar(&clusterLimit, "limit-per-cluster", 5, "articles per cluster (1-20)")
	clusterCmd.Flags().IntVar(&clusterCount, "max-clusters", 6, "clusters to sample (1-10)")

	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "report.html", "output file, - for stdout")
	reportCmd.Flags().IntVar(&reportTitles, "titles", 5, "titles listed per cluster")
	reportCmd.Flags().BoolVar(&reportMarkdown, "markdown", false, "write markdown instead of html")

	importCmd.Flags().StringVar(&importPath, "file", "", "corpus JSON file to import (default: corpus.path)")
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Fit the model and print a cluster sample as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx, os.Stderr)
		if err != nil {
			return err
		}
		defer app.Close()

		clusters, err := app.Clustering.GetClusteredArticles(ctx, clusterLimit, clusterCount)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"clusters": clusters, "total_clusters": len(clusters)})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fit the model and render a cluster report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx, os.Stderr)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Clustering.WarmUp(ctx); err != nil {
			return err
		}
		info, clusters, err := report.Collect(ctx, app.Clustering, reportTitles)
		if err != nil {
			return err
		}
		out := report.Markdown(info, clusters)
		if !reportMarkdown {
			if out, err = report.HTML(out); err != nil {
				return err
			}
		}
		if reportOut == "-" {
			_, err := fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		}
		if err := os.WriteFile(reportOut, []byte(out), 0o644); err != nil {
			return fmt.Errorf("write report failed: %w", err)
		}
		app.Logger.Info("report written", "path", reportOut, "clusters", len(clusters))
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve clustering tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// stdout carries the protocol; logs go to stderr.
		app, err := newApp(ctx, os.Stderr)
		if err != nil {
			return err
		}
		defer app.Close()

		go func() {
			if err := app.Clustering.WarmUp(ctx); err != nil {
				app.Logger.Error("clustering warm-up failed", "error", err)
			}
		}()
		return mcp.ServeStdio(mcp.NewServer(mcp.ServerConfig{Clusters: app.Clustering, Version: version}))
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert a JSON corpus into the MySQL articles table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx, os.Stderr)
		if err != nil {
			return err
		}
		defer app.Close()

		if app.Articles == nil {
			return errors.New("import needs mysql.enabled")
		}
		path := importPath
		if path == "" {
			path = app.Config.Corpus.Path
		}
		articles, err := corpus.NewJSONFile(path).Load(ctx)
		if err != nil {
			return err
		}
		n, err := app.Articles.UpsertBatch(ctx, articles)
		if err != nil {
			return err
		}
		total, err := app.Articles.Count(ctx)
		if err != nil {
			return err
		}
		app.Logger.Info("corpus imported", "file", path, "rows", n, "total", total)
		return nil
	},
}

var version = "dev"
