package model

import (
	"errors"
	"fmt"
)

// Ошибки движка расписания. Проверяются через errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidFormat  = errors.New("invalid format")
	ErrInvalidIndex   = errors.New("invalid slot index")
	ErrNoPattern      = errors.New("no stable weekly pattern")
	ErrInvalidRecord  = errors.New("invalid student record")
	ErrConflict       = errors.New("conflict")
	ErrPaused         = errors.New("student is paused")
	ErrNoCredit       = errors.New("no credit left")
	ErrCycleActive    = errors.New("cycle is not finished")
	ErrNoRenewal      = errors.New("no previous renewal")
	ErrStudentMissing = fmt.Errorf("student %w", ErrNotFound)
)
