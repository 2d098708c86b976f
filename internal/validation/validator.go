package validation

import (
	"errors"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(orderQueryStructValidation, OrderQuery{})

	return v
}

// orderQueryStructValidation rejects an order id without the owning email:
// orders are keyed by email first.
func orderQueryStructValidation(sl validatorv10.StructLevel) {
	q := sl.Current().Interface().(OrderQuery)
	if q.OrderID != "" && q.Email == "" {
		sl.ReportError(q.Email, "email", "Email", "required_with_order", "orderId")
	}
}

// Check validates req and converts failures into an *apperrors.ValidationError.
func Check(v *validatorv10.Validate, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return &apperrors.ValidationError{Fields: map[string]string{"request": err.Error()}}
	}
	return &apperrors.ValidationError{Fields: validationErrorsToMap(ve)}
}

func validationErrorsToMap(ve validatorv10.ValidationErrors) map[string]string {
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fieldPath(fe.Namespace())] = message(fe)
	}
	return out
}

// fieldPath drops the top-level struct name: CreateOrderRequest.shipping.type -> shipping.type
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with_order":
		return "is required when orderId is set"
	case "oneof":
		return "must be one of " + fe.Param()
	case "unique":
		return "must not contain duplicates"
	case "email":
		return "must be a valid email"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " item(s)"
	}
	if fe.Param() != "" {
		return "failed " + fe.Tag() + "=" + fe.Param()
	}
	return "failed " + fe.Tag()
}
