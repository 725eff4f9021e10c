package models

// GradingResult is a raw grading record as returned by a subject backend.
// Its shape differs per subject, so it stays untyped and is read through the
// result reconciler's ordered key lists.
type GradingResult map[string]any

// Score returns a numeric total score when the record carries one.
func (r GradingResult) Score() (float64, bool) {
	for _, key := range []string{"total_score", "score"} {
		switch v := r[key].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
	}
	return 0, false
}

// AnswerStatus is the per-problem review row derived from a grading record.
type AnswerStatus struct {
	ProblemID     string `json:"problem_id"`
	StudentAnswer string `json:"student_answer"`
	CorrectAnswer string `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
	Explanation   string `json:"explanation"`
	// Derived is true when correctness came from comparing answers rather
	// than from an explicit flag on the record.
	Derived bool `json:"derived"`
}

// ReviewSummary aggregates a review for display.
type ReviewSummary struct {
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	Correct   int `json:"correct"`
	Unmatched int `json:"unmatched"`
}

func Summarize(problemIDs []string, statuses map[string]AnswerStatus) ReviewSummary {
	summary := ReviewSummary{Total: len(problemIDs)}
	for _, id := range problemIDs {
		st, ok := statuses[id]
		if !ok {
			summary.Unmatched++
			continue
		}
		summary.Matched++
		if st.IsCorrect {
			summary.Correct++
		}
	}
	return summary
}
