// Package validation checks inbound payloads before they reach the services. Struct rules
// are declared with `binding` tags so the same rules run inside gin's ShouldBindJSON and in
// direct calls to Struct. Custom tags cover the task and user enumerations.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/task-manager/task-manager/internal/db/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	if err := configure(v); err != nil {
		panic(err)
	}
	return v
}

// configure registers the custom tags and reports fields by their JSON name
func configure(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	custom := map[string]validator.Func{
		"taskstatus":   enumValidator(func(s string) bool { return models.TaskStatus(s).Valid() }),
		"taskpriority": enumValidator(func(s string) bool { return models.TaskPriority(s).Valid() }),
		"userrole":     enumValidator(func(s string) bool { return models.Role(s).Valid() }),
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

func enumValidator(valid func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.String {
			return false
		}
		return valid(f.String())
	}
}

// RegisterGinValidators installs the custom tags on gin's default validator so request
// binding understands them. Call once at startup before routes are served.
func RegisterGinValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return configure(v)
}

// FieldErrors maps a JSON field name to a human readable message
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f])
	}
	return strings.Join(parts, "; ")
}

// Struct validates s against its binding tags. Violations are returned as FieldErrors.
func Struct(s interface{}) error {
	return Describe(validate.Struct(s))
}

// Var validates a single value against a tag expression such as "taskstatus"
func Var(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

// Describe converts validator errors into FieldErrors and passes any other error through.
// It returns nil for a nil error.
func Describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "uuid", "uuid4":
		return "must be a UUID"
	case "taskstatus":
		return "must be one of todo, in_progress, done"
	case "taskpriority":
		return "must be one of low, medium, high"
	case "userrole":
		return "must be one of owner, org_admin, member"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
