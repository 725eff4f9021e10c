package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"gorm.io/datatypes"
)

// WorksheetRecord is the persisted header of a teacher-owned worksheet.
type WorksheetRecord struct {
	ID           string                 `gorm:"primaryKey;size:64"`
	AssignmentID string                 `gorm:"size:64;index"`
	Subject      models.Subject         `gorm:"size:16;not null;index"`
	Title        string                 `gorm:"size:255"`
	Status       models.WorksheetStatus `gorm:"size:32;not null"`
	DeployedAt   time.Time
	ClassroomID  *string `gorm:"size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (WorksheetRecord) TableName() string { return "worksheets" }

type ProblemRecord struct {
	ID            string `gorm:"primaryKey;size:64"`
	WorksheetID   string `gorm:"primaryKey;size:64"`
	Position      int    `gorm:"not null"`
	Subject       models.Subject
	QuestionText  string
	Difficulty    string `gorm:"size:32"`
	Choices       datatypes.JSONSlice[string]
	CorrectAnswer string
	Explanation   string
	// Detail holds the subject-specific payload of the problem.
	Detail    datatypes.JSON
	UpdatedAt time.Time
}

func (ProblemRecord) TableName() string { return "worksheet_problems" }

type PassageRecord struct {
	ID                 string `gorm:"primaryKey;size:64"`
	WorksheetID        string `gorm:"primaryKey;size:64"`
	Type               string `gorm:"size:32"`
	ContentForStudent  string
	ContentOriginal    string
	ContentTranslation string
	RelatedProblemIDs  datatypes.JSONSlice[string]
	UpdatedAt          time.Time
}

func (PassageRecord) TableName() string { return "worksheet_passages" }

// Records lists every table owned by the content repository.
func Records() []interface{} {
	return []interface{}{&WorksheetRecord{}, &ProblemRecord{}, &PassageRecord{}}
}

func worksheetToRecord(w models.Worksheet) WorksheetRecord {
	return WorksheetRecord{
		ID:           w.ID,
		AssignmentID: w.AssignmentID,
		Subject:      w.Subject,
		Title:        w.Title,
		Status:       w.Status,
		DeployedAt:   w.DeployedAt,
		ClassroomID:  w.ClassroomID,
	}
}

func (r WorksheetRecord) toModel() models.Worksheet {
	return models.Worksheet{
		ID:           r.ID,
		AssignmentID: r.AssignmentID,
		Subject:      r.Subject,
		Title:        r.Title,
		Status:       r.Status,
		DeployedAt:   r.DeployedAt,
		ClassroomID:  r.ClassroomID,
	}
}

func problemToRecord(worksheetID string, position int, p models.Problem) (ProblemRecord, error) {
	var detail interface{}
	switch p.Subject {
	case models.SubjectMath:
		detail = p.Math
	case models.SubjectKorean:
		detail = p.Korean
	case models.SubjectEnglish:
		detail = p.English
	default:
		return ProblemRecord{}, fmt.Errorf("problem %s: unknown subject %q", p.ID, p.Subject)
	}

	data, err := json.Marshal(detail)
	if err != nil {
		return ProblemRecord{}, fmt.Errorf("problem %s: failed to marshal detail: %w", p.ID, err)
	}

	return ProblemRecord{
		ID:            p.ID,
		WorksheetID:   worksheetID,
		Position:      position,
		Subject:       p.Subject,
		QuestionText:  p.QuestionText,
		Difficulty:    p.Difficulty,
		Choices:       datatypes.JSONSlice[string](p.Choices),
		CorrectAnswer: p.CorrectAnswer,
		Explanation:   p.Explanation,
		Detail:        datatypes.JSON(data),
	}, nil
}

func (r ProblemRecord) toModel() (models.Problem, error) {
	p := models.Problem{
		ID:            r.ID,
		Subject:       r.Subject,
		QuestionText:  r.QuestionText,
		Difficulty:    r.Difficulty,
		Choices:       []string(r.Choices),
		CorrectAnswer: r.CorrectAnswer,
		Explanation:   r.Explanation,
	}

	if len(r.Detail) == 0 || string(r.Detail) == "null" {
		return p, nil
	}

	var err error
	switch r.Subject {
	case models.SubjectMath:
		p.Math = &models.MathDetail{}
		err = json.Unmarshal(r.Detail, p.Math)
	case models.SubjectKorean:
		p.Korean = &models.KoreanDetail{}
		err = json.Unmarshal(r.Detail, p.Korean)
	case models.SubjectEnglish:
		p.English = &models.EnglishDetail{}
		err = json.Unmarshal(r.Detail, p.English)
	default:
		err = fmt.Errorf("unknown subject %q", r.Subject)
	}
	if err != nil {
		return models.Problem{}, fmt.Errorf("problem %s: failed to decode detail: %w", r.ID, err)
	}
	return p, nil
}

func passageToRecord(worksheetID string, p models.Passage) PassageRecord {
	return PassageRecord{
		ID:                 p.ID,
		WorksheetID:        worksheetID,
		Type:               p.Type,
		ContentForStudent:  p.ContentForStudent,
		ContentOriginal:    p.ContentOriginal,
		ContentTranslation: p.ContentTranslation,
		RelatedProblemIDs:  datatypes.JSONSlice[string](p.RelatedProblemIDs),
	}
}

func (r PassageRecord) toModel() models.Passage {
	return models.Passage{
		ID:                 r.ID,
		Type:               r.Type,
		ContentForStudent:  r.ContentForStudent,
		ContentOriginal:    r.ContentOriginal,
		ContentTranslation: r.ContentTranslation,
		RelatedProblemIDs:  []string(r.RelatedProblemIDs),
	}
}
