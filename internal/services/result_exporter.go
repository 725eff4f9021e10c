package services

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	reviewSheet  = "Review"
	summarySheet = "Summary"
)

var reviewHeaders = []string{
	"No.", "Problem ID", "Question", "Your Answer", "Correct Answer", "Result", "Explanation",
}

// ResultExporter renders a graded or reviewed worksheet for download.
type ResultExporter struct{}

func NewResultExporter() *ResultExporter {
	return &ResultExporter{}
}

func reviewable(snap SessionSnapshot) error {
	if snap.State != StateGraded && snap.State != StateReview {
		return fmt.Errorf("%w: no graded result to export (state %s)", ErrInvalidTransition, snap.State)
	}
	return nil
}

func (e *ResultExporter) rows(snap SessionSnapshot) [][]interface{} {
	rows := make([][]interface{}, 0, len(snap.Problems))
	for i, p := range snap.Problems {
		st, ok := snap.Review[p.ID]
		answer := st.StudentAnswer
		if answer == "" && snap.Session != nil {
			answer = snap.Session.Answers[p.ID]
		}
		correct, explanation := p.CorrectAnswer, p.Explanation
		result := "Not graded"
		if ok {
			correct, explanation = st.CorrectAnswer, st.Explanation
			result = "Incorrect"
			if st.IsCorrect {
				result = "Correct"
			}
		}
		rows = append(rows, []interface{}{i + 1, p.ID, p.QuestionText, answer, correct, result, explanation})
	}
	return rows
}

// ExportExcel writes the review and its summary to an .xlsx workbook.
func (e *ResultExporter) ExportExcel(snap SessionSnapshot) ([]byte, error) {
	if err := reviewable(snap); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reviewSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for i, header := range reviewHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(reviewSheet, cell, header)
	}
	for rowIndex, row := range e.rows(snap) {
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(reviewSheet, cell, value)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	summary := models.Summarize(problemIDs(snap.Problems), snap.Review)
	title := ""
	if snap.Worksheet != nil {
		title = snap.Worksheet.Title
	}
	pairs := [][2]interface{}{
		{"Worksheet", title},
		{"Problems", summary.Total},
		{"Correct", summary.Correct},
		{"Graded", summary.Matched},
		{"Not graded", summary.Unmatched},
	}
	if score, ok := snap.Result.Score(); ok {
		pairs = append(pairs, [2]interface{}{"Score", score})
	}
	for i, pair := range pairs {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), pair[0])
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), pair[1])
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportCSV writes the review rows as CSV.
func (e *ResultExporter) ExportCSV(snap SessionSnapshot) ([]byte, error) {
	if err := reviewable(snap); err != nil {
		return nil, err
	}

	var buf strings.Builder
	writer := csv.NewWriter(&buf)
	if err := writer.Write(reviewHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range e.rows(snap) {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = fmt.Sprint(v)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return []byte(buf.String()), nil
}

func problemIDs(problems []models.Problem) []string {
	ids := make([]string, len(problems))
	for i, p := range problems {
		ids[i] = p.ID
	}
	return ids
}
