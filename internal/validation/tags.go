package validation

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/student-registry-api/internal/models"
)

// DateLayout is the calendar-date form accepted by the birthdate tag on strings.
const DateLayout = "2006-01-02"

// New returns a validator with the domain tags registered.
func New(now func() time.Time) *validator.Validate {
	v := validator.New()
	if err := Register(v, now); err != nil {
		panic(err)
	}
	return v
}

// Register installs the curp, mxphone, birthdate and vocabulary tags.
func Register(v *validator.Validate, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	tags := map[string]validator.Func{
		"curp": func(fl validator.FieldLevel) bool {
			return IdentityDocument(fl.Field().String())
		},
		"mxphone": func(fl validator.FieldLevel) bool {
			return Phone(fl.Field().String())
		},
		"birthdate": func(fl validator.FieldLevel) bool {
			var birth time.Time
			switch value := fl.Field().Interface().(type) {
			case time.Time:
				birth = value
			case string:
				parsed, err := time.Parse(DateLayout, value)
				if err != nil {
					return false
				}
				birth = parsed
			default:
				return false
			}
			return BirthDate(birth, now()) == nil
		},
		"level": func(fl validator.FieldLevel) bool {
			return models.EducationLevel(fl.Field().String()).Valid()
		},
		"grade": func(fl validator.FieldLevel) bool {
			return models.Grade(fl.Field().String()).Valid()
		},
		"section": func(fl validator.FieldLevel) bool {
			return models.Section(fl.Field().String()).Valid()
		},
		"status": func(fl validator.FieldLevel) bool {
			return models.StudentStatus(fl.Field().String()).Valid()
		},
		"relationship": func(fl validator.FieldLevel) bool {
			return models.Relationship(fl.Field().String()).Valid()
		},
	}
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}
