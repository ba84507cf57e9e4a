// Package mcp exposes the clustered news feed as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"vnnews-clustering/internal/app"
)

// Clusters is the part of the clustering service the tools call.
type Clusters interface {
	GetClusteredArticles(ctx context.Context, limitPerCluster, maxClusters int) ([]app.ArticleCluster, error)
	GetClusterByID(ctx context.Context, clusterID, limit int) (app.ArticleCluster, error)
	ModelInfo() (app.ModelInfo, error)
}

type ServerConfig struct {
	Clusters Clusters
	Version  string
}

func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	s := server.NewMCPServer(
		"vnnews-clustering",
		ver,
		server.WithToolCapabilities(false),
	)

	registerClustersTool(s, cfg.Clusters)
	registerClusterTool(s, cfg.Clusters)
	registerModelInfoTool(s, cfg.Clusters)
	return s
}

// ServeStdio blocks serving s on stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func registerClustersTool(s *server.MCPServer, svc Clusters) {
	tool := mcp.NewTool("news_clusters",
		mcp.WithDescription("Sample clusters of Vietnamese news articles. Each cluster has a topic name and its articles closest to the cluster centre."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit_per_cluster",
			mcp.Description("Articles per cluster (1-20, default 5)"),
		),
		mcp.WithNumber("max_clusters",
			mcp.Description("Number of clusters (1-10, default 6)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := intArg(req, "limit_per_cluster", 5)
		count := intArg(req, "max_clusters", 6)
		clusters, err := svc.GetClusteredArticles(ctx, limit, count)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"clusters": clusters, "total_clusters": len(clusters)})
	})
}

func registerClusterTool(s *server.MCPServer, svc Clusters) {
	tool := mcp.NewTool("news_cluster",
		mcp.WithDescription("Articles of one cluster, closest to the cluster centre first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("cluster_id",
			mcp.Required(),
			mcp.Description("Cluster id as returned by news_clusters"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum articles (1-50, default 20)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireFloat("cluster_id")
		if err != nil {
			return mcp.NewToolResultError("cluster_id is required"), nil
		}
		cluster, err := svc.GetClusterByID(ctx, int(id), intArg(req, "limit", 20))
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"cluster": cluster})
	})
}

func registerModelInfoTool(s *server.MCPServer, svc Clusters) {
	tool := mcp.NewTool("clustering_model_info",
		mcp.WithDescription("Describe the served clustering model: strategy, chosen k, silhouette scores, corpus size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		info, err := svc.ModelInfo()
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(map[string]any{"model_info": info})
	})
}

func intArg(req mcp.CallToolRequest, name string, def int) int {
	v, err := req.RequireFloat(name)
	if err != nil {
		return def
	}
	return int(v)
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrClusterNotFound):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, app.ErrWarmingUp), errors.Is(err, app.ErrNotReady):
		return mcp.NewToolResultError("clustering model not ready, retry shortly: " + err.Error())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("clustering error: %v", err))
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result failed: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
