package inbox

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// View returns the conversations matching q, newest first, with unread
// counts taken from the live feed once it has been observed.
func (e *Engine) View(q Query) []Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(q.Search))
	counts := e.unreadCounts()

	out := []Summary{}
	for _, s := range e.summaries {
		if e.isDeleted(s) || e.isArchived(s) != q.Archived {
			continue
		}
		switch q.Tab {
		case TabWorker:
			if !s.IsWorker {
				continue
			}
		case TabPoster:
			if !s.IsPoster {
				continue
			}
		}
		if needle != "" &&
			!strings.Contains(fold.String(s.Counterpart.Name), needle) &&
			!strings.Contains(fold.String(s.JobTitle), needle) {
			continue
		}
		c := s.clone()
		if counts != nil {
			c.UnreadCount = counts[s.JobID]
		}
		out = append(out, c)
	}
	sortByRecency(out)
	return out
}

// UnreadTotal sums unread counts over active and archived conversations.
func (e *Engine) UnreadTotal() int {
	total := 0
	for _, archived := range []bool{false, true} {
		for _, s := range e.View(Query{Tab: TabAll, Archived: archived}) {
			total += s.UnreadCount
		}
	}
	return total
}

func sortByRecency(list []Summary) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp() > list[j].Timestamp()
	})
}
