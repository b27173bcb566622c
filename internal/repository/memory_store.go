package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"go.uber.org/zap"
)

// MemoryStore хранилище в памяти процесса. Записи хранятся в сериализованном виде,
// как в постоянном хранилище, и проходят нормализацию при каждом чтении.
type MemoryStore struct {
	mu       sync.RWMutex
	students map[string][]byte
	logs     []*model.LogEntry
	decoder  *Decoder
	logger   *zap.Logger
}

func NewMemoryStore(decoder *Decoder, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		students: make(map[string][]byte),
		decoder:  decoder,
		logger:   logger,
	}
}

func (s *MemoryStore) GetStudent(_ context.Context, id string) (*model.Student, error) {
	s.mu.RLock()
	data, ok := s.students[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return s.decoder.Decode(id, data)
}

func (s *MemoryStore) ListStudents(_ context.Context) ([]*model.Student, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.students))
	for id := range s.students {
		ids = append(ids, id)
	}
	snapshot := make(map[string][]byte, len(s.students))
	for id, data := range s.students {
		snapshot[id] = data
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	result := make([]*model.Student, 0, len(ids))
	for _, id := range ids {
		st, err := s.decoder.Decode(id, snapshot[id])
		if err != nil {
			s.logger.Warn("Skipping undecodable student", zap.String("student_id", id), zap.Error(err))
			continue
		}
		result = append(result, st)
	}
	return result, nil
}

func (s *MemoryStore) Commit(_ context.Context, st *model.Student, entry *model.LogEntry) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.students[st.ID] = data
	if entry != nil {
		copied := *entry
		s.logs = append(s.logs, &copied)
	}
	return nil
}

func (s *MemoryStore) DeleteStudent(_ context.Context, id string, purge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[id]; !ok {
		return fmt.Errorf("delete student %s: %w", id, model.ErrStudentMissing)
	}
	delete(s.students, id)

	if purge {
		kept := s.logs[:0]
		for _, e := range s.logs {
			if e.StudentID != id {
				kept = append(kept, e)
			}
		}
		s.logs = kept
	}
	return nil
}

func (s *MemoryStore) AppendLog(_ context.Context, entry *model.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.logs = append(s.logs, &copied)
	return nil
}

func (s *MemoryStore) QueryLogs(_ context.Context, filter model.LogFilter) ([]*model.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.LogEntry
	for _, e := range s.logs {
		if filter.Match(e) {
			copied := *e
			result = append(result, &copied)
		}
	}
	return result, nil
}

// Raw возвращает сохранённые байты записи
func (s *MemoryStore) Raw(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.students[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// PutRaw сохраняет запись как есть, без нормализации (импорт и тесты)
func (s *MemoryStore) PutRaw(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[id] = append([]byte(nil), data...)
}
