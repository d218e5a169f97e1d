package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/student-registry-api/internal/models"
)

type taggedPayload struct {
	CURP         string                `validate:"required,curp"`
	Phone        string                `validate:"required,mxphone"`
	BirthDate    time.Time             `validate:"birthdate"`
	Level        models.EducationLevel `validate:"level"`
	Grade        models.Grade          `validate:"grade"`
	Section      models.Section        `validate:"section"`
	Status       models.StudentStatus  `validate:"status"`
	Relationship models.Relationship   `validate:"relationship"`
}

func TestRegisteredTags(t *testing.T) {
	today := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)
	v := New(func() time.Time { return today })

	valid := taggedPayload{
		CURP:         "PELJ100515HDFRZN09",
		Phone:        "55 5123 4567",
		BirthDate:    time.Date(2015, time.May, 15, 0, 0, 0, 0, time.UTC),
		Level:        models.LevelPrimaria,
		Grade:        "5",
		Section:      "B",
		Status:       models.StatusActive,
		Relationship: models.RelationshipMother,
	}
	assert.NoError(t, v.Struct(valid))

	invalid := valid
	invalid.CURP = "PELJ100515XDFRZN09"
	invalid.Level = "Universidad"
	invalid.BirthDate = today
	err := v.Struct(invalid)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "curp")
	assert.Contains(t, err.Error(), "level")
	assert.Contains(t, err.Error(), "birthdate")
}

func TestBirthDateTagOnStrings(t *testing.T) {
	today := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)
	v := New(func() time.Time { return today })

	type payload struct {
		BirthDate string `validate:"required,birthdate"`
	}
	assert.NoError(t, v.Struct(payload{BirthDate: "2015-05-15"}))
	assert.Error(t, v.Struct(payload{BirthDate: "15/05/2015"}))
	assert.Error(t, v.Struct(payload{BirthDate: "1990-01-01"}))
}
