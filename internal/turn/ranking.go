package turn

import (
	"sort"

	"github.com/victornm/quizbox/internal/domain"
)

// Rank orders every player who joined the session: points descending, then
// completed categories descending, then earlier joiners first. Positions are
// 1-based and unique.
func Rank(s domain.Session) []domain.RankEntry {
	entries := make([]domain.RankEntry, 0, len(s.Players))
	for i, p := range s.Players {
		progress := s.Progress[p.Name]
		entries = append(entries, domain.RankEntry{
			Name:      p.Name,
			Points:    progress.Points,
			Completed: progress.CompletedCount(),
			JoinOrder: i,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Completed != b.Completed {
			return a.Completed > b.Completed
		}
		return a.JoinOrder < b.JoinOrder
	})

	for i := range entries {
		entries[i].Position = i + 1
	}

	return entries
}
