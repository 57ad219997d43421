package training

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/fieldtrack/fieldtrack/core"
)

var (
	subStatusTag  = "substatus"
	subStatusText = "status must be one of: draft, submitted"
)

// InitValidators registers the training validators. core.InitValidators must run first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(subStatusTag, subStatusValidation)
	core.RegisterCustomTranslation(validate, translator, subStatusTag, subStatusText)
}

func subStatusValidation(fl validator.FieldLevel) bool {
	switch SubmissionStatus(fl.Field().String()) {
	case StatusDraft, StatusSubmitted:
		return true
	}
	return false
}
