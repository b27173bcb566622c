package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/Freeeeeet/class_track_bot/internal/repository/base"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore хранит записи учеников в JSONB и журнал в class_logs
type PostgresStore struct {
	*base.Repository
	decoder *Decoder
	logger  *zap.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, decoder *Decoder, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		Repository: base.NewRepository(pool),
		decoder:    decoder,
		logger:     logger,
	}
}

// GetStudent получает ученика по ID
func (r *PostgresStore) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	query := `SELECT data FROM students WHERE id = $1`

	var data []byte
	err := r.QueryRow(ctx, query, id).Scan(&data)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get student: %w", err)
	}

	return r.decoder.Decode(id, data)
}

// ListStudents получает всех учеников
func (r *PostgresStore) ListStudents(ctx context.Context) ([]*model.Student, error) {
	query := `SELECT id, data FROM students ORDER BY id`

	rows, err := r.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []*model.Student
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		st, err := r.decoder.Decode(id, data)
		if err != nil {
			r.logger.Warn("Skipping undecodable student", zap.String("student_id", id), zap.Error(err))
			continue
		}
		students = append(students, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}

	return students, nil
}

// Commit сохраняет запись и запись журнала в одной транзакции
func (r *PostgresStore) Commit(ctx context.Context, st *model.Student, entry *model.LogEntry) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}

	tx, err := r.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO students (id, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, query, st.ID, data); err != nil {
		return fmt.Errorf("save student: %w", err)
	}

	if entry != nil {
		if err := insertLog(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit student: %w", err)
	}
	return nil
}

// DeleteStudent удаляет ученика; при purge удаляет и его журнал
func (r *PostgresStore) DeleteStudent(ctx context.Context, id string, purge bool) error {
	tx, err := r.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete student %s: %w", id, model.ErrStudentMissing)
	}

	if purge {
		if _, err := tx.Exec(ctx, `DELETE FROM class_logs WHERE student_id = $1`, id); err != nil {
			return fmt.Errorf("purge student logs: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// AppendLog добавляет запись в журнал
func (r *PostgresStore) AppendLog(ctx context.Context, entry *model.LogEntry) error {
	return insertLog(ctx, r.Pool(), entry)
}

// QueryLogs выбирает журнал в порядке добавления
func (r *PostgresStore) QueryLogs(ctx context.Context, filter model.LogFilter) ([]*model.LogEntry, error) {
	query := `
		SELECT entry FROM class_logs
		WHERE ($1 = '' OR student_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY created_at, id
	`

	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}

	rows, err := r.Query(ctx, query, filter.StudentID, statuses)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var entries []*model.LogEntry
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		var entry model.LogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			r.logger.Warn("Skipping undecodable log entry", zap.Error(err))
			continue
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}

	return entries, nil
}

// execer общий интерфейс пула и транзакции
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertLog(ctx context.Context, db execer, entry *model.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	query := `
		INSERT INTO class_logs (id, student_id, status, entry, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := db.Exec(ctx, query, entry.ID, entry.StudentID, string(entry.Status), data, entry.CreatedAt); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}
