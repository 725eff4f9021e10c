package validator

import (
	"testing"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passageRef(id string) *models.EnglishDetail {
	return &models.EnglishDetail{PassageID: &id}
}

func TestValidator_CustomTags(t *testing.T) {
	v := New()

	ws := models.Worksheet{ID: "w1", Subject: models.SubjectMath, Status: models.WorksheetAssigned}
	assert.NoError(t, v.ValidateStruct(ws))

	ws.Subject = "science"
	err := v.ValidateStruct(ws)
	require.Error(t, err)

	errs, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "subject", errs[0].Field)
	assert.Equal(t, "subject", errs[0].Rule)

	ws.Subject = models.SubjectKorean
	ws.Status = "archived"
	err = v.ValidateStruct(ws)
	require.Error(t, err)
	assert.Equal(t, "status", err.(ValidationErrors)[0].Field)
}

func TestValidator_Validate_Content(t *testing.T) {
	v := New()

	content := &models.WorksheetContent{
		Worksheet: models.Worksheet{ID: "w1", Subject: models.SubjectEnglish, Status: models.WorksheetAssigned},
		Problems: []models.Problem{
			{ID: "1", Subject: models.SubjectEnglish, English: passageRef("P1")},
			{ID: "2", Subject: models.SubjectEnglish, English: passageRef("P9")},
			{ID: "1", Subject: models.SubjectEnglish},
		},
		Passages: []models.Passage{{ID: "P1"}},
	}

	err := v.Validate(content)
	require.Error(t, err)

	errs := err.(ValidationErrors)
	require.Len(t, errs, 2)
	assert.Equal(t, "problems[1]", errs[0].Field)
	assert.Equal(t, "references unknown passage", errs[0].Message)
	assert.Equal(t, "duplicate problem id", errs[1].Message)
}

func TestContentValidator_ValidateProblem(t *testing.T) {
	cv := NewContentValidator()

	ok := &models.Problem{ID: "1", Subject: models.SubjectMath, Choices: []string{"1/2", "1/3"}, CorrectAnswer: "2"}
	assert.NoError(t, cv.ValidateProblem(ok))

	bad := &models.Problem{ID: "2", Subject: models.SubjectMath, Choices: []string{"a", "b"}, CorrectAnswer: "c"}
	assert.Error(t, cv.ValidateProblem(bad))

	mixed := &models.Problem{ID: "3", Subject: models.SubjectMath, Korean: &models.KoreanDetail{}}
	assert.Error(t, cv.ValidateProblem(mixed))
}

func TestContentValidator_ValidateAnswers(t *testing.T) {
	cv := NewContentValidator()
	content := &models.WorksheetContent{Problems: []models.Problem{{ID: "1"}}}

	assert.Empty(t, cv.ValidateAnswers(content, map[string]string{"1": "x"}))

	errs := cv.ValidateAnswers(content, map[string]string{"7": "x"})
	require.Len(t, errs, 1)
	assert.Equal(t, "known_problem", errs[0].Rule)
}

func TestContentValidator_ValidateStructure_IgnoresAnswerKeys(t *testing.T) {
	cv := NewContentValidator()

	content := &models.WorksheetContent{
		Worksheet: models.Worksheet{ID: "w1", Subject: models.SubjectEnglish, Status: models.WorksheetAssigned},
		Problems: []models.Problem{
			{ID: "1", Subject: models.SubjectEnglish, Choices: []string{"apple", "pear"}, CorrectAnswer: "A"},
			{ID: "2", Subject: models.SubjectEnglish, Choices: []string{"apple", "pear"}, CorrectAnswer: "0"},
		},
	}

	assert.Empty(t, cv.ValidateStructure(content))
	assert.Len(t, cv.ValidateContent(content), 2)

	content.Problems = append(content.Problems, models.Problem{ID: "2", Subject: models.SubjectEnglish})
	content.Problems = append(content.Problems, models.Problem{ID: "3", Subject: models.SubjectEnglish, English: passageRef("P1")})
	errs := cv.ValidateStructure(content)
	require.Len(t, errs, 2)
	assert.Equal(t, "duplicate problem id", errs[0].Message)
	assert.Equal(t, "references unknown passage", errs[1].Message)
}
