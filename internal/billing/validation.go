package billing

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/pricing"
)

// NewValidator returns a validator that reports JSON field names and treats
// decimal.Decimal as a number for comparison tags.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

const quantityPlaces = 3

// maxBillAmount keeps every stored amount inside NUMERIC(14,2).
var maxBillAmount = decimal.New(1, 11)

// FieldError is one entry of a VALIDATION_ERROR details list.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func validationError(message string, fields []FieldError) *common.AppError {
	return &common.AppError{
		Code:       common.CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"fields": fields},
	}
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationError("invalid payload", nil)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if idx := strings.Index(ns, "."); idx >= 0 {
			ns = ns[idx+1:]
		}
		fields = append(fields, FieldError{Field: ns, Rule: fe.Tag()})
	}
	return validationError("invalid payload", fields)
}

// checkLines applies the per-line rules to a submission. Unlike previews,
// submissions reject incomplete lines instead of skipping them.
func checkLines(kind Kind, items []ItemRequest) []FieldError {
	var fields []FieldError
	for i, it := range items {
		prefix := fmt.Sprintf("items[%d].", i)
		lineStart := len(fields)
		switch kind {
		case KindSales:
			if it.ItemID <= 0 {
				fields = append(fields, FieldError{Field: prefix + "itemId", Rule: "required"})
			}
		case KindPurchase:
			if strings.TrimSpace(it.Description) == "" {
				fields = append(fields, FieldError{Field: prefix + "description", Rule: "required"})
			}
		}
		if !it.Quantity.Equal(it.Quantity.Truncate(quantityPlaces)) {
			fields = append(fields, FieldError{Field: prefix + "quantity", Rule: "max_scale=3"})
		}
		if !it.Rate.Equal(it.Rate.Truncate(pricing.MoneyPlaces)) {
			fields = append(fields, FieldError{Field: prefix + "rate", Rule: "max_scale=2"})
		}
		if !pricing.Valid(it.lineItem()) && len(fields) == lineStart {
			fields = append(fields, FieldError{Field: prefix[:len(prefix)-1], Rule: "incomplete"})
		}
	}
	return fields
}
