package model

// Defaults значения, подставляемые в записи без соответствующих полей
type Defaults struct {
	CutoffHours           int
	CycleWeeks            int
	DurationHours         float64
	ReminderOffsetMinutes int
}

// DefaultSettings возвращает значения по умолчанию
func DefaultSettings() Defaults {
	return Defaults{
		CutoffHours:           24,
		CycleWeeks:            4,
		DurationHours:         1.0,
		ReminderOffsetMinutes: 60,
	}
}
