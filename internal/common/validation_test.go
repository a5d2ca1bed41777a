package common

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type sample struct {
	UserID string  `json:"user_id" validate:"required"`
	Amount float64 `json:"total_amount" validate:"gt=0"`
	Note   string  `validate:"max=3"`
}

func TestStructValidator(t *testing.T) {
	sv := NewStructValidator()
	if err := sv.Struct(sample{UserID: "u1", Amount: 1}); err != nil {
		t.Fatalf("Struct() error = %v", err)
	}

	err := sv.Struct(sample{Amount: -1, Note: "long"})
	if !errors.Is(err, ErrValidation) || CodeOf(err) != CodeInvalidInput {
		t.Fatalf("Struct() = %v, want INVALID_INPUT validation error", err)
	}
	if !strings.Contains(err.Error(), "user_id, total_amount, Note") {
		t.Errorf("field names not reported by json tag: %v", err)
	}
}

func TestValidator(t *testing.T) {
	v := NewValidator().
		Field("query", "  ", Required).
		Field("user_id", "abcdef", MaxLength(3)).
		Field("template", "CHART", OneOf("RECENT_BILLS", "MONTHLY_SUMMARY")).
		Field("ok", "x", Required, MaxLength(3))

	var fields []string
	for _, e := range v.Errors() {
		fields = append(fields, e.Field)
	}
	if diff := cmp.Diff([]string{"query", "user_id", "template"}, fields); diff != "" {
		t.Errorf("failing fields mismatch (-want +got):\n%s", diff)
	}

	err := ValidateAndReturnError(v)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("ValidateAndReturnError() code = %s", status.Code(err))
	}
	if ValidateAndReturnError(NewValidator().Field("q", "fine", Required)) != nil {
		t.Error("clean validator should return nil")
	}
}

func TestMaxLengthCountsRunes(t *testing.T) {
	if err := MaxLength(3)("vendor", "₹₹₹"); err != nil {
		t.Errorf("MaxLength counted bytes: %v", err)
	}
}
