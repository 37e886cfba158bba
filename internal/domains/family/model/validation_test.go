package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familytree-backend/pkg/optional"
)

func TestPersonFields_ValidateCreate(t *testing.T) {
	tests := []struct {
		name    string
		fields  PersonFields
		wantErr string
	}{
		{
			name:   "valid",
			fields: PersonFields{Name: optional.Of("Omar"), Gender: optional.Of(GenderMale)},
		},
		{
			name:    "missing name",
			fields:  PersonFields{Gender: optional.Of(GenderMale)},
			wantErr: "name",
		},
		{
			name:    "blank name",
			fields:  PersonFields{Name: optional.Of("   "), Gender: optional.Of(GenderMale)},
			wantErr: "name",
		},
		{
			name:    "bad gender",
			fields:  PersonFields{Name: optional.Of("Omar"), Gender: optional.Of("other")},
			wantErr: "gender",
		},
		{
			name:    "negative sibling order",
			fields:  PersonFields{Name: optional.Of("Omar"), Gender: optional.Of(GenderMale), SiblingOrder: optional.Of(-1)},
			wantErr: "sibling_order",
		},
		{
			name:    "name too long",
			fields:  PersonFields{Name: optional.Of(strings.Repeat("a", MaxNameLength+1)), Gender: optional.Of(GenderMale)},
			wantErr: "name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ToValidationError(3, tt.fields.Validate(OpCreate))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, 3, verr.Index)
			assert.Equal(t, tt.wantErr, verr.Field)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestPersonFields_ValidateUpdate(t *testing.T) {
	// update không bắt buộc name/gender nhưng không được null các cột NOT NULL
	assert.NoError(t, PersonFields{Bio: optional.Of("x")}.Validate(OpUpdate))
	assert.NoError(t, PersonFields{BirthYear: optional.Null[int]()}.Validate(OpUpdate))

	err := ToValidationError(0, PersonFields{Name: optional.Null[string]()}.Validate(OpUpdate))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)

	err = ToValidationError(0, PersonFields{Status: optional.Of("missing")}.Validate(OpUpdate))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "status", verr.Field)
}

func TestValidatePerson_DeathBeforeBirth(t *testing.T) {
	birth, death := 1950, 1940
	p := &Person{Name: "Ali", Gender: GenderMale, Status: StatusDeceased, BirthYear: &birth, DeathYear: &death}

	err := ToValidationError(1, ValidatePerson(p))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "death_year", verr.Field)

	death = 2000
	assert.NoError(t, ValidatePerson(p))
}

func TestPersonFields_IsEmpty(t *testing.T) {
	assert.True(t, PersonFields{}.IsEmpty())
	assert.False(t, PersonFields{Bio: optional.Null[string]()}.IsEmpty())
}
