package schedule

import "time"

// maxGenerated ограничивает GenerateUntil при неверно заданной границе
const maxGenerated = 1000

// Generate возвращает count ближайших занятий по шаблону строго после anchor
// в хронологическом порядке. Для пустого шаблона возвращает пустой список.
func Generate(anchor time.Time, pattern []Slot, count int) []time.Time {
	if len(pattern) == 0 || count <= 0 {
		return nil
	}

	result := make([]time.Time, 0, count)
	current := anchor
	for i := 0; i < count; i++ {
		next := earliestAfter(current, pattern)
		result = append(result, next)
		current = next
	}
	return result
}

// GenerateUntil возвращает все занятия по шаблону в интервале (anchor, until]
func GenerateUntil(anchor time.Time, pattern []Slot, until time.Time) []time.Time {
	if len(pattern) == 0 {
		return nil
	}

	var result []time.Time
	current := anchor
	for len(result) < maxGenerated {
		next := earliestAfter(current, pattern)
		if next.After(until) {
			break
		}
		result = append(result, next)
		current = next
	}
	return result
}

// earliestAfter при равенстве моментов выбирает слот, идущий раньше в шаблоне
func earliestAfter(anchor time.Time, pattern []Slot) time.Time {
	best := NextOccurrenceAfter(anchor, pattern[0])
	for _, slot := range pattern[1:] {
		if candidate := NextOccurrenceAfter(anchor, slot); candidate.Before(best) {
			best = candidate
		}
	}
	return best
}
