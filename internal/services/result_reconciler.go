package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
)

// KeyFallback is an ordered list of candidate field names. Upstream systems
// disagree on which key carries a value; the first key present wins.
type KeyFallback []string

var (
	ProblemKeys       = KeyFallback{"problem_id", "id"}
	StudentKeys       = KeyFallback{"student_id", "graded_by"}
	StudentAnswerKeys = KeyFallback{"student_answer", "user_answer", "answer"}
	CorrectAnswerKeys = KeyFallback{"correct_answer", "answer_key"}
	CorrectnessKeys   = KeyFallback{"is_correct", "correct"}
	ExplanationKeys   = KeyFallback{"explanation", "feedback"}
	// RecordListKeys locate per-problem records nested in a grading result.
	RecordListKeys = KeyFallback{"results", "answers", "details", "problem_results"}
)

// Lookup returns the value of the first key present with a non-null value.
func (k KeyFallback) Lookup(record map[string]any) (any, string, bool) {
	for _, key := range k {
		if v, ok := record[key]; ok && v != nil {
			return v, key, true
		}
	}
	return nil, "", false
}

// LookupString is Lookup with the value coerced to a string.
func (k KeyFallback) LookupString(record map[string]any) (string, bool) {
	v, _, ok := k.Lookup(record)
	if !ok {
		return "", false
	}
	return coerceString(v)
}

// ResultReconciler maps raw grading records onto per-problem AnswerStatus.
type ResultReconciler struct {
	logger *slog.Logger
}

func NewResultReconciler(logger *slog.Logger) *ResultReconciler {
	return &ResultReconciler{logger: logger}
}

// Reconcile matches records to problems for studentID. Problems without a
// matching record get no AnswerStatus. An empty studentID accepts every record.
func (r *ResultReconciler) Reconcile(ctx context.Context, worksheetID, studentID string, problems []models.Problem, records []models.GradingResult) map[string]models.AnswerStatus {
	byProblem := make(map[string]map[string]any)
	for _, rec := range r.flatten(records, studentID) {
		id, ok := ProblemKeys.LookupString(rec)
		if !ok {
			continue
		}
		if _, seen := byProblem[id]; !seen {
			byProblem[id] = rec
		}
	}

	statuses := make(map[string]models.AnswerStatus, len(problems))
	for _, p := range problems {
		rec, ok := byProblem[p.ID]
		if !ok {
			r.logger.WarnContext(ctx, "no grading record matched problem",
				"worksheet_id", worksheetID,
				"student_id", studentID,
				"problem_id", p.ID,
				"matched_by", ProblemKeys.String(),
				"records", len(byProblem))
			continue
		}
		statuses[p.ID] = r.status(p, rec)
	}
	return statuses
}

// ReconcileResult is Reconcile for the single record returned by a submission.
func (r *ResultReconciler) ReconcileResult(ctx context.Context, worksheetID, studentID string, problems []models.Problem, result models.GradingResult) map[string]models.AnswerStatus {
	if result == nil {
		return map[string]models.AnswerStatus{}
	}
	return r.Reconcile(ctx, worksheetID, studentID, problems, []models.GradingResult{result})
}

// flatten keeps the records belonging to studentID and expands nested
// per-problem lists. Nested records inherit the parent's identity.
func (r *ResultReconciler) flatten(records []models.GradingResult, studentID string) []map[string]any {
	var out []map[string]any
	for _, rec := range records {
		if !belongsTo(rec, studentID) {
			continue
		}
		nested, ok := nestedRecords(rec)
		if !ok {
			out = append(out, rec)
			continue
		}
		for _, item := range nested {
			if _, _, hasOwner := StudentKeys.Lookup(item); hasOwner && !belongsTo(item, studentID) {
				continue
			}
			out = append(out, item)
		}
	}
	return out
}

func nestedRecords(rec map[string]any) ([]map[string]any, bool) {
	v, _, ok := RecordListKeys.Lookup(rec)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	items := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, true
}

func belongsTo(rec map[string]any, studentID string) bool {
	if studentID == "" {
		return true
	}
	found := false
	for _, key := range StudentKeys {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		found = true
		if s, ok := coerceString(v); ok && sameIdentity(s, studentID) {
			return true
		}
	}
	// Records without any identity field are taken to be the caller's own.
	return !found
}

func (r *ResultReconciler) status(p models.Problem, rec map[string]any) models.AnswerStatus {
	st := models.AnswerStatus{
		ProblemID:     p.ID,
		CorrectAnswer: p.CorrectAnswer,
		Explanation:   p.Explanation,
	}
	if s, ok := StudentAnswerKeys.LookupString(rec); ok {
		st.StudentAnswer = s
	}
	if s, ok := CorrectAnswerKeys.LookupString(rec); ok {
		st.CorrectAnswer = s
	}
	if s, ok := ExplanationKeys.LookupString(rec); ok && s != "" {
		st.Explanation = s
	}

	if v, _, ok := CorrectnessKeys.Lookup(rec); ok {
		if explicit, ok := coerceBool(v); ok {
			st.IsCorrect = explicit
			return st
		}
	}

	st.Derived = true
	st.IsCorrect = st.StudentAnswer != "" && normalizeAnswer(st.StudentAnswer) == normalizeAnswer(st.CorrectAnswer)
	return st
}

func normalizeAnswer(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func coerceString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func coerceBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	}
	return false, false
}

// sameIdentity compares identifiers, treating numeric strings by value so
// that "42", "42.0" and 42 match.
func sameIdentity(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return true
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && fa == fb
}

// String renders the precedence order, e.g. [problem_id > id].
func (k KeyFallback) String() string {
	return fmt.Sprintf("[%s]", strings.Join(k, " > "))
}
