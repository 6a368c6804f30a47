package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"ClimaPulse/internal/domain/errs"
	"ClimaPulse/internal/domain/models"
	xhttp "ClimaPulse/pkg/http"
)

// MaxRegionLength bounds region names in runes.
const MaxRegionLength = 64

// Gate checks request shape before anything touches the cache or the backend.
// It never returns an error for a malformed request; failures are reported as
// a list of field errors.
type Gate struct {
	v *validator.Validate
}

func New() *Gate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// tags are fixed and the funcs are non-nil, registration cannot fail
	_ = v.RegisterValidation("indicator", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseIndicator(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("timerange", func(fl validator.FieldLevel) bool {
		return models.TimeRange(strings.ToLower(strings.TrimSpace(fl.Field().String()))).Valid()
	})
	_ = v.RegisterValidation("region", func(fl validator.FieldLevel) bool {
		r := models.NormalizeRegion(fl.Field().String())
		n := utf8.RuneCountInString(r)
		return n >= 1 && n <= MaxRegionLength
	})

	return &Gate{v: v}
}

// Validate returns the failures of req, or nil when it is well formed.
func (g *Gate) Validate(ctx context.Context, req interface{}) []errs.FieldError {
	err := g.v.StructCtx(ctx, req)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return []errs.FieldError{{Code: "ERR_INVALID", Message: err.Error()}}
	}

	out := make([]errs.FieldError, 0, len(ves))
	for _, fe := range ves {
		out = append(out, errs.FieldError{
			Field:   fe.Namespace()[strings.IndexByte(fe.Namespace(), '.')+1:],
			Code:    xhttp.ErrorCode(fe),
			Message: message(fe),
			Params:  params(fe),
		})
	}
	return out
}

// Check fills the default values of req, then converts its failures into an
// INVALID_PARAMS error tagged with op. req must be a struct pointer.
func (g *Gate) Check(ctx context.Context, op string, req interface{}) error {
	if err := defaults.Set(req); err != nil {
		return errs.Validation(op, []errs.FieldError{{Code: "ERR_INVALID", Message: err.Error()}})
	}
	if failures := g.Validate(ctx, req); len(failures) > 0 {
		return errs.Validation(op, failures)
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "indicator":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.Join(models.IndicatorNames(), ", "))
	case "timerange":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.Join(models.TimeRangeNames(), ", "))
	case "region":
		return fmt.Sprintf("%s must be between 1 and %d characters", fe.Field(), MaxRegionLength)
	default:
		return xhttp.FieldMessage(fe)
	}
}

func params(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "indicator":
		return map[string]interface{}{"options": models.IndicatorNames()}
	case "timerange":
		return map[string]interface{}{"options": models.TimeRangeNames()}
	case "region":
		return map[string]interface{}{"min": 1, "max": MaxRegionLength}
	default:
		return xhttp.FieldParams(fe)
	}
}
