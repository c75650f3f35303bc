package replay

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/cadence/internal/domain/model"
)

// Learner profiles for generated logs.
const (
	profileSteady = iota
	profileStruggling
	profileFast
	profileErratic
	profileCount
)

// Generation ranges.
const (
	fastRTMin     = 900.0
	fastRTRange   = 1800.0
	steadyRTMin   = 2500.0
	steadyRTRange = 3000.0
	slowRTMin     = 7000.0
	slowRTRange   = 6000.0
	attemptGapMin = 4 * time.Second
	attemptGapMax = 25 * time.Second
)

var (
	verbs   = []string{"hablar", "comer", "vivir", "ser", "estar", "tener", "ir", "hacer"}
	moods   = []string{"indicative", "subjunctive"}
	tenses  = []string{"present", "preterite", "imperfect", "future"}
	persons = []string{"1s", "2s", "3s", "1p", "2p", "3p"}
)

// Generate builds a synthetic log of users×perUser attempts starting at
// start. Outcomes depend only on seed; attempt ids are fresh UUIDs. Each
// user follows one learner profile.
func Generate(seed uint64, users, perUser int, start time.Time) []model.AttemptEvent {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	attempts := make([]model.AttemptEvent, 0, users*perUser)

	for u := 0; u < users; u++ {
		userID := "learner-" + strconv.Itoa(u+1)
		profile := u % profileCount
		at := start
		for i := 0; i < perUser; i++ {
			at = at.Add(attemptGapMin + time.Duration(rng.Int64N(int64(attemptGapMax-attemptGapMin))))
			correct, rt, hints := sample(rng, profile, i)
			a := model.AttemptEvent{
				ID:             uuid.NewString(),
				UserID:         userID,
				Correct:        correct,
				ResponseTimeMs: rt,
				HintsUsed:      hints,
				Item: model.Item{
					Verb:   verbs[rng.IntN(len(verbs))],
					Mood:   moods[rng.IntN(len(moods))],
					Tense:  tenses[rng.IntN(len(tenses))],
					Person: persons[rng.IntN(len(persons))],
				},
				Timestamp: at,
			}
			if !correct && rng.IntN(4) == 0 {
				a.ErrorTypes = []string{"accent"}
			}
			attempts = append(attempts, a)
		}
	}
	return attempts
}

// sample draws one outcome for a profile. Erratic learners alternate between
// runs of fast correct answers and slow failures.
func sample(rng *rand.Rand, profile, i int) (correct bool, rtMs float64, hints int) {
	switch profile {
	case profileFast:
		return rng.Float64() < 0.92, fastRTMin + rng.Float64()*fastRTRange, 0
	case profileStruggling:
		correct = rng.Float64() < 0.45
		if rng.IntN(3) == 0 {
			hints = 1 + rng.IntN(2)
		}
		return correct, slowRTMin + rng.Float64()*slowRTRange, hints
	case profileErratic:
		if (i/6)%2 == 0 {
			return rng.Float64() < 0.9, fastRTMin + rng.Float64()*fastRTRange, 0
		}
		return rng.Float64() < 0.3, slowRTMin + rng.Float64()*slowRTRange, rng.IntN(2)
	default:
		return rng.Float64() < 0.75, steadyRTMin + rng.Float64()*steadyRTRange, 0
	}
}
