package schedule

import (
	"sort"
	"time"
)

const (
	// MinHistoryPoints минимальное количество занятий в истории для извлечения шаблона
	MinHistoryPoints = 4
	// MinGroupSize минимальный размер группы, чтобы слот считался устойчивым
	MinGroupSize = 2
	// GroupToleranceMinutes допустимое отклонение от среднего времени группы
	GroupToleranceMinutes = 30
)

type slotGroup struct {
	weekday time.Weekday
	sum     int
	count   int
}

func (g *slotGroup) average() int {
	return (g.sum + g.count/2) / g.count
}

// ExtractWeeklyPattern выводит недельный шаблон из истории занятий.
// Занятия группируются по дню недели, если время укладывается в ±30 минут от
// среднего группы; в шаблон попадают группы минимум из двух занятий.
// Возвращает false, если точек меньше четырёх или устойчивых групп нет.
func ExtractWeeklyPattern(history []time.Time, loc *time.Location) ([]Slot, bool) {
	if len(history) < MinHistoryPoints {
		return nil, false
	}

	points := make([]time.Time, len(history))
	for i, t := range history {
		points[i] = EnsureZoned(t, loc)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })

	var groups []*slotGroup
	for _, t := range points {
		minuteOfDay := t.Hour()*60 + t.Minute()

		var target *slotGroup
		for _, g := range groups {
			if g.weekday != t.Weekday() {
				continue
			}
			diff := minuteOfDay - g.average()
			if diff < 0 {
				diff = -diff
			}
			if diff <= GroupToleranceMinutes {
				target = g
				break
			}
		}

		if target == nil {
			target = &slotGroup{weekday: t.Weekday()}
			groups = append(groups, target)
		}
		target.sum += minuteOfDay
		target.count++
	}

	var slots []Slot
	for _, g := range groups {
		if g.count < MinGroupSize {
			continue
		}
		avg := g.average()
		slots = append(slots, Slot{
			Weekday:  g.weekday,
			Hour:     avg / 60,
			Minute:   avg % 60,
			Location: loc,
		})
	}

	if len(slots) == 0 {
		return nil, false
	}

	SortSlots(slots)
	return slots, true
}

// SortSlots сортирует слоты по дню недели (с понедельника), часу и минуте
func SortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].sortKey() < slots[j].sortKey()
	})
}
