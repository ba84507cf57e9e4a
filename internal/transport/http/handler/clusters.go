package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vnnews-clustering/internal/app"
	"vnnews-clustering/internal/report"
	"vnnews-clustering/internal/transport/http/response"
)

type ClusterService interface {
	GetClusteredArticles(ctx context.Context, limitPerCluster, maxClusters int) ([]app.ArticleCluster, error)
	GetClusterByID(ctx context.Context, clusterID, limit int) (app.ArticleCluster, error)
	ClusterInfo(ctx context.Context) ([]app.ClusterInfo, error)
	ModelInfo() (app.ModelInfo, error)
}

type ClusterHandler struct {
	svc     ClusterService
	timeout time.Duration
}

func NewClusterHandler(svc ClusterService, timeout time.Duration) *ClusterHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClusterHandler{svc: svc, timeout: timeout}
}

type clustersResponse struct {
	Clusters      []app.ArticleCluster `json:"clusters"`
	TotalClusters int                  `json:"total_clusters"`
}

func (h *ClusterHandler) List(c *gin.Context) {
	limit, ok := intQuery(c, "limit_per_cluster", 5)
	if !ok {
		return
	}
	count, ok := intQuery(c, "max_clusters", 6)
	if !ok {
		return
	}
	h.sample(c, limit, count, false)
}

// Hot serves the featured clusters of the hot-news page.
func (h *ClusterHandler) Hot(c *gin.Context) {
	limit, ok := intQuery(c, "limit_per_cluster", 4)
	if !ok {
		return
	}
	count, ok := intQuery(c, "featured_clusters", 4)
	if !ok {
		return
	}
	if limit < 1 || limit > 10 || count < 1 || count > 8 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "limit_per_cluster must be in [1,10] and featured_clusters in [1,8]")
		return
	}
	h.sample(c, limit, count, false)
}

// Legacy returns the bare cluster list without the response envelope.
func (h *ClusterHandler) Legacy(c *gin.Context) {
	limit, ok := intQuery(c, "limit_per_cluster", 5)
	if !ok {
		return
	}
	count, ok := intQuery(c, "max_clusters", 6)
	if !ok {
		return
	}
	h.sample(c, limit, count, true)
}

func (h *ClusterHandler) sample(c *gin.Context, limit, count int, bare bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	clusters, err := h.svc.GetClusteredArticles(ctx, limit, count)
	if err != nil {
		writeError(c, err)
		return
	}
	if bare {
		c.JSON(http.StatusOK, clusters)
		return
	}
	response.OK(c, clustersResponse{Clusters: clusters, TotalClusters: len(clusters)})
}

func (h *ClusterHandler) Get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "cluster id must be an integer")
		return
	}
	limit, ok := intQuery(c, "limit", 20)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	cluster, err := h.svc.GetClusterByID(ctx, id, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"cluster": cluster})
}

func (h *ClusterHandler) Info(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	infos, err := h.svc.ClusterInfo(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"clusters": infos})
}

func (h *ClusterHandler) ModelInfo(c *gin.Context) {
	info, err := h.svc.ModelInfo()
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"model_info": info})
}

func (h *ClusterHandler) Report(c *gin.Context) {
	titles, ok := intQuery(c, "titles", 5)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	info, clusters, err := report.Collect(ctx, h.svc, max(1, min(titles, 50)))
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := report.HTML(report.Markdown(info, clusters))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, name+" must be an integer")
		return 0, false
	}
	return v, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrClusterNotFound):
		response.Error(c, http.StatusNotFound, response.CodeClusterNotFound, err.Error())
	case errors.Is(err, app.ErrWarmingUp):
		response.Error(c, http.StatusServiceUnavailable, response.CodeWarmingUp, "clustering model is warming up")
	case errors.Is(err, app.ErrNotReady):
		response.Error(c, http.StatusServiceUnavailable, response.CodeNotReady, "clustering model is not ready")
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusServiceUnavailable, response.CodeTimeout, "clustering model is still loading, retry shortly")
	case errors.Is(err, app.ErrRefitEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeRefitEnqueue, "refit request could not be queued")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "clustering error")
	}
}
