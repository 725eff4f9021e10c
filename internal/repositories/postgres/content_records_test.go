package postgres

import (
	"testing"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemRecord_RoundTripKeepsVariant(t *testing.T) {
	passageID := "P1"
	problems := []models.Problem{
		{ID: "1", Subject: models.SubjectMath, Choices: []string{"1", "2"}, CorrectAnswer: "2",
			Math: &models.MathDetail{Unit: "fractions", AllowsHandwriting: true}},
		{ID: "2", Subject: models.SubjectKorean, Korean: &models.KoreanDetail{Domain: "grammar"}},
		{ID: "3", Subject: models.SubjectEnglish, English: &models.EnglishDetail{PassageID: &passageID}},
	}

	for i, p := range problems {
		record, err := problemToRecord("w1", i, p)
		require.NoError(t, err)
		assert.Equal(t, "w1", record.WorksheetID)
		assert.Equal(t, i, record.Position)

		back, err := record.toModel()
		require.NoError(t, err)
		assert.True(t, p.Equal(back), "problem %s", p.ID)
		assert.NoError(t, back.CheckVariant())
	}
}

func TestProblemRecord_NullDetail(t *testing.T) {
	record, err := problemToRecord("w1", 0, models.Problem{ID: "1", Subject: models.SubjectKorean})
	require.NoError(t, err)

	back, err := record.toModel()
	require.NoError(t, err)
	assert.Nil(t, back.Korean)
}

func TestProblemToRecord_UnknownSubject(t *testing.T) {
	_, err := problemToRecord("w1", 0, models.Problem{ID: "1", Subject: "science"})
	assert.Error(t, err)
}

func TestPassageAndWorksheetRecords(t *testing.T) {
	p := models.Passage{ID: "P1", Type: "article", ContentForStudent: "text", RelatedProblemIDs: []string{"3", "4"}}
	assert.True(t, p.Equal(passageToRecord("w1", p).toModel()))

	w := models.Worksheet{ID: "w1", Subject: models.SubjectEnglish, Title: "Reading", Status: models.WorksheetAssigned}
	assert.Equal(t, w, worksheetToRecord(w).toModel())
}
