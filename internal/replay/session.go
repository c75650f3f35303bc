package replay

import (
	"time"

	"github.com/okian/cadence/internal/domain/model"
)

// SplitSessions cuts one learner's chronological attempts into practice
// sessions wherever two consecutive attempts are more than gap apart.
func SplitSessions(attempts []model.AttemptEvent, gap time.Duration) [][]model.AttemptEvent {
	if gap <= 0 {
		gap = DefaultSessionGap
	}
	var sessions [][]model.AttemptEvent
	start := 0
	for i := 1; i < len(attempts); i++ {
		if attempts[i].Timestamp.Sub(attempts[i-1].Timestamp) > gap {
			sessions = append(sessions, attempts[start:i])
			start = i
		}
	}
	if start < len(attempts) {
		sessions = append(sessions, attempts[start:])
	}
	return sessions
}

// SummarizeSession builds the summary of one practice session. It returns
// false when attempts is empty.
func SummarizeSession(attempts []model.AttemptEvent) (model.SessionSummary, bool) {
	if len(attempts) == 0 {
		return model.SessionSummary{}, false
	}
	s := model.SessionSummary{
		UserID:      attempts[0].UserID,
		Start:       attempts[0].Timestamp,
		End:         attempts[0].Timestamp,
		Attempts:    len(attempts),
		SessionType: model.SessionPractice,
	}
	var correct, streak int
	var rt float64
	for _, a := range attempts {
		if a.Timestamp.Before(s.Start) {
			s.Start = a.Timestamp
		}
		if a.Timestamp.After(s.End) {
			s.End = a.Timestamp
		}
		if a.Correct {
			correct++
			streak = 0
		} else {
			streak++
			s.LongestErrorStreak = max(s.LongestErrorStreak, streak)
		}
		rt += a.ResponseTimeMs
	}
	s.Accuracy = float64(correct) / float64(len(attempts))
	s.AvgResponseTimeMs = rt / float64(len(attempts))
	return s, true
}
