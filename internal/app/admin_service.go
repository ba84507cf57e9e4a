package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vnnews-clustering/internal/pkg/jwtutil"
)

var (
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrRefitEnqueue      = errors.New("refit enqueue failed")
)

const AdminRole = "admin"

// RefitRequest asks the workers to rebuild the clustering model.
type RefitRequest struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

type RefitPublisher interface {
	PublishRefit(ctx context.Context, req RefitRequest) error
}

// Refresher rebuilds the model in process.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// AdminService authenticates the single configured operator and triggers
// refits.
type AdminService struct {
	username      string
	passwordHash  string
	jwtSecret     string
	jwtExpiration time.Duration
	publisher     RefitPublisher
	refresher     Refresher
}

type LoginInput struct {
	Username string
	Password string
}

// RefitResult reports how a refit was handled: queued for a worker, or run
// in process when no queue is configured.
type RefitResult struct {
	Queued     bool   `json:"queued"`
	Generation string `json:"generation,omitempty"`
}

func NewAdminService(username, passwordHash, jwtSecret string, jwtExpiration time.Duration, publisher RefitPublisher, refresher Refresher) *AdminService {
	return &AdminService{
		username:      username,
		passwordHash:  passwordHash,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		publisher:     publisher,
		refresher:     refresher,
	}
}

func (s *AdminService) Login(input LoginInput) (string, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return "", ErrInvalidInput
	}
	if s.passwordHash == "" || username != s.username {
		return "", ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredential
	}
	return jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, username, AdminRole)
}

func (s *AdminService) RequestRefit(ctx context.Context, requestedBy string) (RefitResult, error) {
	if s.publisher != nil {
		req := RefitRequest{RequestedBy: requestedBy, RequestedAt: time.Now().UTC()}
		if err := s.publisher.PublishRefit(ctx, req); err != nil {
			return RefitResult{}, errors.Join(ErrRefitEnqueue, err)
		}
		return RefitResult{Queued: true}, nil
	}
	generation, err := s.refresher.Refresh(ctx)
	if err != nil {
		return RefitResult{}, err
	}
	return RefitResult{Generation: generation}, nil
}
