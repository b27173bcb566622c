package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/class_track_bot/internal/engine"
	"github.com/Freeeeeet/class_track_bot/internal/model"
)

// Op действие над расписанием ученика
type Op uint8

const (
	OpComplete Op = iota + 1
	OpCancel
	OpCancelByProvider
	OpReschedule
	OpEditSlot
	OpAddSlot
	OpDeleteSlot
	OpBulkShift
	OpRenew
	OpAwardFree
	OpAwardReschedule
	OpSetPaused
	OpSetReminderOffset
	OpEnsureHorizon
	OpCompleteFree
	OpBookMakeUp
	OpRenewSame
	OpBalanceWarning
)

var opNames = map[Op]string{
	OpComplete:          "complete",
	OpCancel:            "cancel",
	OpCancelByProvider:  "cancel_by_provider",
	OpReschedule:        "reschedule",
	OpEditSlot:          "edit_slot",
	OpAddSlot:           "add_slot",
	OpDeleteSlot:        "delete_slot",
	OpBulkShift:         "bulk_shift",
	OpRenew:             "renew",
	OpAwardFree:         "award_free",
	OpAwardReschedule:   "award_reschedule",
	OpSetPaused:         "set_paused",
	OpSetReminderOffset: "set_reminder_offset",
	OpEnsureHorizon:     "ensure_horizon",
	OpCompleteFree:      "complete_free",
	OpBookMakeUp:        "book_make_up",
	OpRenewSame:         "renew_same",
	OpBalanceWarning:    "balance_warning",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Command действие с параметрами. Какие поля используются, зависит от Op.
type Command struct {
	Op         Op
	StudentID  string
	Occurrence string // complete, cancel, reschedule, make-up
	NewValue   string // reschedule: ISO-метка или HH:MM
	Index      int    // edit/delete/bulk shift
	Slot       string // edit/add
	Shift      engine.Shift
	Count      int  // renew
	Paused     bool // set paused
	Minutes    int  // reminder offset
}

// Execute выполняет команду транспорта. Неизвестное действие возвращает ErrInvalidFormat.
func (s *StudentService) Execute(ctx context.Context, cmd Command) (*engine.Result, error) {
	switch cmd.Op {
	case OpComplete:
		return s.CompleteClass(ctx, cmd.StudentID, cmd.Occurrence)
	case OpCancel:
		return s.CancelClass(ctx, cmd.StudentID, cmd.Occurrence)
	case OpCancelByProvider:
		return s.CancelByProvider(ctx, cmd.StudentID, cmd.Occurrence)
	case OpReschedule:
		return s.RescheduleClass(ctx, cmd.StudentID, cmd.Occurrence, cmd.NewValue)
	case OpEditSlot:
		return s.EditWeeklySlot(ctx, cmd.StudentID, cmd.Index, cmd.Slot)
	case OpAddSlot:
		return s.AddWeeklySlot(ctx, cmd.StudentID, cmd.Slot)
	case OpDeleteSlot:
		return s.DeleteWeeklySlot(ctx, cmd.StudentID, cmd.Index)
	case OpBulkShift:
		return s.BulkShiftSlot(ctx, cmd.StudentID, cmd.Index, cmd.Shift)
	case OpRenew:
		return s.Renew(ctx, cmd.StudentID, cmd.Count)
	case OpAwardFree:
		return s.AwardFreeCredit(ctx, cmd.StudentID)
	case OpAwardReschedule:
		return s.AwardRescheduleCredit(ctx, cmd.StudentID)
	case OpSetPaused:
		return s.SetPaused(ctx, cmd.StudentID, cmd.Paused)
	case OpSetReminderOffset:
		return s.SetReminderOffset(ctx, cmd.StudentID, cmd.Minutes)
	case OpEnsureHorizon:
		return s.EnsureHorizon(ctx, cmd.StudentID)
	case OpCompleteFree:
		return s.CompleteWithFreeCredit(ctx, cmd.StudentID, cmd.Occurrence)
	case OpBookMakeUp:
		return s.BookMakeUpClass(ctx, cmd.StudentID, cmd.Occurrence)
	case OpRenewSame:
		return s.RenewSame(ctx, cmd.StudentID)
	default:
		return nil, fmt.Errorf("execute %s: %w: unknown action", cmd.Op, model.ErrInvalidFormat)
	}
}
