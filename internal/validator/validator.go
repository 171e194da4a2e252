// Package validator checks GetOilPriceTrend parameters before any provider is consulted.
//
// Both range fields are always checked, so a caller learns about every problem at once:
//   - a missing date reports only that it is required
//   - a date that could not be read reports the same message as one with a time of day
//   - a present date must carry no time-of-day component
//
// Range ordering is not checked here; the price providers reject reversed ranges.
package validator

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	playground "github.com/go-playground/validator/v10"

	"github.com/johnayoung/go-oilprice-trend/internal/models"
)

const (
	tagDateOnly     = "dateonly"
	dateOnlyMessage = "%s must be a valid date with only year, month, and day."
)

// Violation describes one rule a field broke.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Violations is the ordered list of rule failures for one query.
type Violations []Violation

// Error joins the messages so Violations can travel as an error.
func (v Violations) Error() string {
	return strings.Join(v.Messages(), " ")
}

// Messages returns the human-readable messages in field order.
func (v Violations) Messages() []string {
	out := make([]string, len(v))
	for i, violation := range v {
		out[i] = violation.Message
	}
	return out
}

// Validator validates price queries. It is safe for concurrent use.
type Validator struct {
	validate *playground.Validate
}

// New creates a validator with the date rules registered.
func New() *Validator {
	v := playground.New()
	v.RegisterTagNameFunc(wireFieldName)
	if err := v.RegisterValidation(tagDateOnly, isDateOnly); err != nil {
		// Registration only fails for an empty tag or nil func.
		panic(fmt.Sprintf("register %s validation: %v", tagDateOnly, err))
	}
	return &Validator{validate: v}
}

// ValidateQuery returns every violation found in q, or nil if it is valid.
func (v *Validator) ValidateQuery(q models.PriceQuery) Violations {
	err := v.validate.Struct(q)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(playground.ValidationErrors)
	if !ok {
		return Violations{{Field: "params", Message: err.Error()}}
	}

	violations := make(Violations, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		message := messageFor(fe)
		// A value that was present but unreadable is a bad date, not a missing one.
		if fe.Tag() == "required" && q.Malformed(fe.StructField()) {
			message = fmt.Sprintf(dateOnlyMessage, fe.Field())
		}
		violations = append(violations, Violation{
			Field:   fe.Field(),
			Message: message,
		})
	}
	return violations
}

func messageFor(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case tagDateOnly:
		return fmt.Sprintf(dateOnlyMessage, fe.Field())
	default:
		return fmt.Sprintf("%s failed the %s rule.", fe.Field(), fe.Tag())
	}
}

// isDateOnly accepts time values whose hour, minute, second and sub-second parts are all zero.
func isDateOnly(fl playground.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return models.IsDateOnly(t)
}

// wireFieldName reports fields by their JSON name with a leading capital, e.g. StartDateISO8601.
func wireFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return field.Name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
