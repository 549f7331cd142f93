package api

import (
	"context"

	"github.com/ryanxin/collector/app/collect"
	"github.com/ryanxin/collector/app/database"
	"github.com/ryanxin/collector/app/filestore"
	"github.com/ryanxin/collector/app/scheduler"
)

type CollectServiceInterface interface {
	CollectAll(ctx context.Context) (*collect.Result, error)
	CollectOne(ctx context.Context, sourceID int64) (*collect.Result, error)
	MigrateStorage() (*filestore.MigrateResult, error)
}

var _ CollectServiceInterface = (*collect.Service)(nil)

type SchedulerInterface interface {
	Schedule() string
	Reschedule(schedule string) error
}

var _ SchedulerInterface = (*scheduler.Scheduler)(nil)

type Handler struct {
	db        *database.DB
	sources   database.SourceRepository
	contents  database.ContentRepository
	tasks     database.TaskRepository
	settings  database.SettingRepository
	service   CollectServiceInterface
	scheduler SchedulerInterface
	version   string
}

type CreateSourceRequest struct {
	Name     string         `json:"name" binding:"required"`
	Type     string         `json:"type" binding:"required"`
	Config   map[string]any `json:"config"`
	IsActive *bool          `json:"is_active"`
}

type UpdateSourceRequest struct {
	Name     *string        `json:"name"`
	Type     *string        `json:"type"`
	Config   map[string]any `json:"config"`
	IsActive *bool          `json:"is_active"`
}

type CollectRequest struct {
	SourceID *int64 `json:"source_id"`
}
