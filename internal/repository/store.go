package repository

import (
	"context"

	"github.com/Freeeeeet/class_track_bot/internal/model"
)

// Store хранилище записей учеников и журнала.
// GetStudent возвращает nil, nil для отсутствующего ученика.
// Commit сохраняет запись и запись журнала атомарно.
type Store interface {
	GetStudent(ctx context.Context, id string) (*model.Student, error)
	ListStudents(ctx context.Context) ([]*model.Student, error)
	Commit(ctx context.Context, st *model.Student, entry *model.LogEntry) error
	DeleteStudent(ctx context.Context, id string, purge bool) error
	AppendLog(ctx context.Context, entry *model.LogEntry) error
	QueryLogs(ctx context.Context, filter model.LogFilter) ([]*model.LogEntry, error)
}
