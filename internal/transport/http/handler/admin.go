package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vnnews-clustering/internal/app"
	"vnnews-clustering/internal/transport/http/middleware"
	"vnnews-clustering/internal/transport/http/response"
)

type AdminService interface {
	Login(input app.LoginInput) (string, error)
	RequestRefit(ctx context.Context, requestedBy string) (app.RefitResult, error)
}

type AdminHandler struct {
	adminService AdminService
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

func NewAdminHandler(adminService AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	token, err := h.adminService.Login(app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "login failed")
		}
		return
	}
	response.OK(c, gin.H{"token": token})
}

func (h *AdminHandler) Refit(c *gin.Context) {
	result, err := h.adminService.RequestRefit(c.Request.Context(), c.GetString(middleware.ContextUsernameKey))
	if err != nil {
		writeError(c, err)
		return
	}
	if result.Queued {
		c.JSON(http.StatusAccepted, response.APIResponse{Code: response.CodeOK, Message: "refit queued", Data: result})
		return
	}
	response.OK(c, result)
}
