package errors

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("problem_id", "must reference a problem", "42")

	assert.Equal(t, "problem_id", err.Field)
	assert.Equal(t, "must reference a problem", err.Message)
	assert.Equal(t, "42", err.Value)
	assert.Equal(t, "validation error on field 'problem_id': must reference a problem", err.Error())
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "validation failed", errs.Error())

	errs = append(errs, *NewValidationError("field1", "message1", nil))
	assert.Equal(t, "validation failed: field1 message1", errs.Error())

	errs = append(errs, *NewValidationError("field2", "message2", nil))
	assert.Equal(t, "validation failed: 2 field errors", errs.Error())
}

func TestNewValidationErrorWithRule(t *testing.T) {
	err := NewValidationErrorWithRule("answers.7", MessageForRule("known_problem", ""), "known_problem", "7")

	assert.Equal(t, "known_problem", err.Rule)
	assert.Equal(t, "must reference a problem of the selected worksheet", err.Message)
}

func TestToValidationErrors(t *testing.T) {
	type request struct {
		WorksheetID string `validate:"required"`
		Index       int    `validate:"min=0"`
	}

	v := validator.New()
	err := v.Struct(request{Index: -1})
	require.Error(t, err)

	errs := ToValidationErrors(err)
	require.Len(t, errs, 2)
	assert.Equal(t, "is required", errs[0].Message)
	assert.Equal(t, "required", errs[0].Rule)
	assert.Equal(t, "must be at least 0", errs[1].Message)
}

func TestMessageForRule_Unknown(t *testing.T) {
	assert.Equal(t, "validation failed for rule 'mystery'", MessageForRule("mystery", ""))
}
