package models

import (
	"fmt"
	"reflect"
)

// MathDetail carries math-only problem fields.
type MathDetail struct {
	Unit               string `json:"unit,omitempty"`
	AnswerFormat       string `json:"answer_format,omitempty"` // "choice", "short", "handwriting"
	AllowsHandwriting  bool   `json:"allows_handwriting"`
	LatexQuestion      string `json:"latex_question,omitempty"`
	LatexCorrectAnswer string `json:"latex_correct_answer,omitempty"`
}

// KoreanDetail carries Korean-only problem fields.
type KoreanDetail struct {
	Domain     string `json:"domain,omitempty"` // literature, grammar, reading ...
	SourceText string `json:"source_text,omitempty"`
}

// EnglishDetail carries English-only problem fields. PassageID is a weak
// reference: the passage is not owned by the problem.
type EnglishDetail struct {
	PassageID    *string `json:"passage_id,omitempty"`
	QuestionType string  `json:"question_type,omitempty"`
}

// Problem is tagged by Subject. Exactly the detail matching Subject may be set.
type Problem struct {
	ID            string   `json:"id" validate:"required"`
	Subject       Subject  `json:"subject" validate:"required,subject"`
	QuestionText  string   `json:"question_text"`
	Difficulty    string   `json:"difficulty"`
	Choices       []string `json:"choices,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`

	Math    *MathDetail    `json:"math,omitempty"`
	Korean  *KoreanDetail  `json:"korean,omitempty"`
	English *EnglishDetail `json:"english,omitempty"`
}

// CheckVariant verifies that only the detail belonging to the subject is present.
func (p *Problem) CheckVariant() error {
	switch p.Subject {
	case SubjectMath:
		if p.Korean != nil || p.English != nil {
			return fmt.Errorf("problem %s: math problem carries foreign subject detail", p.ID)
		}
	case SubjectKorean:
		if p.Math != nil || p.English != nil {
			return fmt.Errorf("problem %s: korean problem carries foreign subject detail", p.ID)
		}
	case SubjectEnglish:
		if p.Math != nil || p.Korean != nil {
			return fmt.Errorf("problem %s: english problem carries foreign subject detail", p.ID)
		}
	default:
		return fmt.Errorf("problem %s: unknown subject %q", p.ID, p.Subject)
	}
	return nil
}

// PassageID returns the linked passage for English problems.
func (p *Problem) PassageID() (string, bool) {
	if p.Subject != SubjectEnglish || p.English == nil || p.English.PassageID == nil || *p.English.PassageID == "" {
		return "", false
	}
	return *p.English.PassageID, true
}

func (p *Problem) IsChoice() bool {
	return len(p.Choices) > 0
}

// Equal compares two problems field by field.
func (p Problem) Equal(other Problem) bool {
	return reflect.DeepEqual(p, other)
}

// Passage is a shared reading text referenced by one or more English problems.
type Passage struct {
	ID                 string   `json:"id" validate:"required"`
	Type               string   `json:"type"`
	ContentForStudent  string   `json:"content_for_student"`
	ContentOriginal    string   `json:"content_original"`
	ContentTranslation string   `json:"content_translation"`
	RelatedProblemIDs  []string `json:"related_problem_ids"`
}

func (p Passage) Equal(other Passage) bool {
	return reflect.DeepEqual(p, other)
}

// AssignmentDetail is what the repository returns for one worksheet.
type AssignmentDetail struct {
	Problems []Problem `json:"problems"`
	Passages []Passage `json:"passages,omitempty"`
}
