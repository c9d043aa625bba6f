// Package state holds the mutable bookkeeping of one generation session.
// A Session is owned by exactly one goroutine for its lifetime, so nothing
// here is locked.
package state

import (
	"strings"

	"querygenie/internal/models"
)

// DedupIndex remembers the questions and SQL texts accepted so far. It only
// grows.
type DedupIndex struct {
	questions map[string]struct{}
	queries   map[string]struct{}
}

func NewDedupIndex() *DedupIndex {
	return &DedupIndex{
		questions: make(map[string]struct{}),
		queries:   make(map[string]struct{}),
	}
}

// normalize collapses whitespace runs so formatting differences do not
// defeat the index.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Contains reports whether the question or the SQL was already accepted.
func (d *DedupIndex) Contains(c models.Candidate) bool {
	if _, ok := d.questions[normalize(c.Question)]; ok {
		return true
	}
	_, ok := d.queries[normalize(c.SQL)]
	return ok
}

func (d *DedupIndex) Add(c models.Candidate) {
	d.questions[normalize(c.Question)] = struct{}{}
	d.queries[normalize(c.SQL)] = struct{}{}
}

func (d *DedupIndex) Len() int {
	return len(d.queries)
}

// Session tracks accepted insights and attempts against a quota and an
// attempt budget.
type Session struct {
	ID string

	quota      int
	budget     int
	attempts   int
	accepted   []models.AcceptedInsight
	dedup      *DedupIndex
	rejections map[string]int
}

// NewSession returns an empty session. Non-positive limits become 1 so the
// loop always makes progress.
func NewSession(id string, quota, budget int) *Session {
	if quota < 1 {
		quota = 1
	}
	if budget < 1 {
		budget = 1
	}
	return &Session{
		ID:         id,
		quota:      quota,
		budget:     budget,
		dedup:      NewDedupIndex(),
		rejections: make(map[string]int),
	}
}

func (s *Session) Quota() int    { return s.quota }
func (s *Session) Budget() int   { return s.budget }
func (s *Session) Attempts() int { return s.attempts }

// Done reports whether the quota is met or the budget is spent.
func (s *Session) Done() bool {
	return len(s.accepted) >= s.quota || s.attempts >= s.budget
}

// BeginAttempt charges one attempt. It returns false, charging nothing,
// once the session is done.
func (s *Session) BeginAttempt() bool {
	if s.Done() {
		return false
	}
	s.attempts++
	return true
}

func (s *Session) IsDuplicate(c models.Candidate) bool {
	return s.dedup.Contains(c)
}

// Accept appends insight and records it in the dedup index. It reports
// false for duplicates and when the quota is already met.
func (s *Session) Accept(insight models.AcceptedInsight) bool {
	if len(s.accepted) >= s.quota || s.dedup.Contains(insight.Candidate) || len(insight.Rows) == 0 {
		return false
	}
	s.accepted = append(s.accepted, insight)
	s.dedup.Add(insight.Candidate)
	return true
}

func (s *Session) Reject(reason string) {
	s.rejections[reason]++
}

// Accepted returns the accepted insights in acceptance order.
func (s *Session) Accepted() []models.AcceptedInsight {
	out := make([]models.AcceptedInsight, len(s.accepted))
	copy(out, s.accepted)
	return out
}

// Rejections returns a copy of the per-reason rejection counts.
func (s *Session) Rejections() map[string]int {
	out := make(map[string]int, len(s.rejections))
	for reason, n := range s.rejections {
		out[reason] = n
	}
	return out
}
