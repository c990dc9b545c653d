// Package validation はgo-playground/validatorによる入力構造体の検証を提供する。
// 検証エラーはmodel.APIError（INVALID_INPUT）に変換して返す。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/movemonth/internal/model"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator はシングルトンのvalidatorを返す。
// フィールド名はjsonタグの名前で報告する。
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		mustRegister(v, "activity_type", func(fl validator.FieldLevel) bool {
			_, ok := model.ParseActivityType(fl.Field().String())
			return ok
		})
		mustRegister(v, "date_only", func(fl validator.FieldLevel) bool {
			_, err := model.ParseDate(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// ValidateStruct は構造体を検証する。
// 失敗した場合は最初の違反フィールドを示すINVALID_INPUTエラーを返す。
func ValidateStruct(s interface{}) *model.APIError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return model.NewInvalidInputError(err.Error())
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, translateError(fe))
	}
	return model.NewInvalidInputError(strings.Join(messages, "; "))
}

// messageTemplates はパラメータを持たないタグのメッセージ。
var messageTemplates = map[string]string{
	"required":      "%s is required",
	"activity_type": "%s must be one of: cycling, running, walking, golfing, rowing",
	"date_only":     "%s must be a date in YYYY-MM-DD format",
}

// messageWithParam はパラメータを含むタグのメッセージ。
var messageWithParam = map[string]string{
	"gt":  "%s must be greater than %s",
	"gte": "%s must be greater than or equal to %s",
	"lte": "%s must be less than or equal to %s",
}

func translateError(fe validator.FieldError) string {
	field := fe.Field()
	if tmpl, ok := messageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := messageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}

	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
