package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/SAP-F-2025/worksheet-session/internal/errors"
	"github.com/SAP-F-2025/worksheet-session/internal/models"
)

// ContentValidator handles worksheet content rules that struct tags cannot express
type ContentValidator struct{}

// NewContentValidator creates a new content validator
func NewContentValidator() *ContentValidator {
	return &ContentValidator{}
}

// ValidateProblem validates a single authored problem: its shape and, for
// choice problems, an answer key that names one of the choices
func (v *ContentValidator) ValidateProblem(p *models.Problem) error {
	if err := checkShape(p); err != nil {
		return err
	}
	if p.IsChoice() && p.CorrectAnswer != "" && !slices.Contains(p.Choices, p.CorrectAnswer) && !isChoiceIndex(p.CorrectAnswer, len(p.Choices)) {
		return fmt.Errorf("problem %s: correct answer is not one of the choices", p.ID)
	}
	return nil
}

// ValidateContent checks an authored worksheet: unique problem ids, valid
// problems and passage references that resolve inside the worksheet.
func (v *ContentValidator) ValidateContent(c *models.WorksheetContent) ValidationErrors {
	return v.validate(c, v.ValidateProblem)
}

// ValidateStructure checks a worksheet loaded for answering. Answer keys are
// not inspected; only ids, variants and passage references must hold.
func (v *ContentValidator) ValidateStructure(c *models.WorksheetContent) ValidationErrors {
	return v.validate(c, checkShape)
}

func (v *ContentValidator) validate(c *models.WorksheetContent, check func(*models.Problem) error) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]bool, len(c.Problems))

	for i := range c.Problems {
		p := &c.Problems[i]
		field := fmt.Sprintf("problems[%d]", i)

		if seen[p.ID] {
			errs = append(errs, *errors.NewValidationError(field, "duplicate problem id", p.ID))
			continue
		}
		seen[p.ID] = true

		if p.Subject != c.Worksheet.Subject {
			errs = append(errs, *errors.NewValidationError(field, "subject does not match worksheet", p.Subject))
		}
		if err := check(p); err != nil {
			errs = append(errs, *errors.NewValidationError(field, err.Error(), p.ID))
			continue
		}
		if pid, ok := p.PassageID(); ok {
			if passage, _ := c.FindPassage(pid); passage == nil {
				errs = append(errs, *errors.NewValidationError(field, "references unknown passage", pid))
			}
		}
	}

	return errs
}

// ValidateAnswers checks that every answered problem belongs to the worksheet.
func (v *ContentValidator) ValidateAnswers(c *models.WorksheetContent, answers map[string]string) ValidationErrors {
	var errs ValidationErrors
	for id := range answers {
		if p, _ := c.FindProblem(id); p == nil {
			errs = append(errs, *errors.NewValidationErrorWithRule("answers."+id, errors.MessageForRule("known_problem", ""), "known_problem", id))
		}
	}
	return errs
}

func checkShape(p *models.Problem) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("problem id is required")
	}
	return p.CheckVariant()
}

// isChoiceIndex accepts 1-based choice numbers as correct answers.
func isChoiceIndex(answer string, n int) bool {
	var idx int
	if _, err := fmt.Sscanf(answer, "%d", &idx); err != nil {
		return false
	}
	return fmt.Sprint(idx) == strings.TrimSpace(answer) && idx >= 1 && idx <= n
}
