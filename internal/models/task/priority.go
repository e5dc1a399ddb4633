package task

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Rank: неизвестный или пустой приоритет считается medium.
func (p Priority) Rank() int {
	if rank, ok := priorityRank[p]; ok {
		return rank
	}
	return priorityRank[PriorityMedium]
}

func ValidPriority(p Priority) bool {
	_, ok := priorityRank[p]
	return ok
}

// ComparePriority задаёт порядок отображения: приоритет по убыванию,
// срочные раньше, затем sort_order по возрастанию. Стабильна для sort.SliceStable.
func ComparePriority(a, b *Task) int {
	if diff := b.Priority.Rank() - a.Priority.Rank(); diff != 0 {
		return sign(diff)
	}
	if a.Urgency != b.Urgency {
		if a.Urgency {
			return -1
		}
		return 1
	}
	return sign(a.SortOrder - b.SortOrder)
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
