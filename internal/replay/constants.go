package replay

import "time"

// Defaults for a replay run.
const (
	DefaultSheet   = "Sheet1"
	DefaultTimeout = 10 * time.Second
	DefaultWorkers = 8

	// DefaultSessionGap separates two practice sessions of one learner.
	DefaultSessionGap = 30 * time.Minute

	filePermission      = 0o600
	directoryPermission = 0o750
)

// Column headers recognised in spreadsheet and CSV logs. Matching ignores
// case and surrounding space.
const (
	colID             = "id"
	colUser           = "user_id"
	colVerb           = "verb"
	colMood           = "mood"
	colTense          = "tense"
	colPerson         = "person"
	colCorrect        = "correct"
	colResponseTimeMs = "response_time_ms"
	colHints          = "hints_used"
	colTimestamp      = "timestamp"
	colConfidence     = "confidence"
	colErrorTypes     = "error_types"
)

// Columns lists the headers WriteXLSX emits, in order.
var Columns = []string{
	colID, colUser, colVerb, colMood, colTense, colPerson, colCorrect,
	colResponseTimeMs, colHints, colTimestamp, colConfidence, colErrorTypes,
}
