package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aaronlmathis/kuptime/internal/models"
)

// ErrNotFound is returned when a monitor does not exist.
var ErrNotFound = errors.New("not found")

// Repository persists monitors and their check history.
type Repository interface {
	ListMonitors(ctx context.Context) ([]*models.Monitor, error)
	GetMonitor(ctx context.Context, id string) (*models.Monitor, error)
	CreateMonitor(ctx context.Context, monitor *models.Monitor) error
	DeleteMonitor(ctx context.Context, id string) error

	InsertCheck(ctx context.Context, check *models.CheckResult) error
	// ListChecks returns checks at or after since, newest first. A limit <= 0 means no limit.
	ListChecks(ctx context.Context, monitorID string, since time.Time, limit int) ([]models.CheckResult, error)
}
