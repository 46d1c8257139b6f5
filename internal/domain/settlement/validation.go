package settlement

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// CheckMovement validates a movement before it may touch a running balance.
// It returns nil when the record is usable. A timestamp that is present but
// unparseable is reported as INVALID_TIMESTAMP.
func CheckMovement(m Movement, source SourceKind) *Issue {
	if err := recordValidator().Struct(m); err != nil {
		issue := NewIssue(IssueMalformedRecord, source, m.ID, describeValidation(err))
		return &issue
	}
	if m.Quantity == nil {
		issue := NewIssue(IssueMalformedRecord, source, m.ID, "missing Quantity")
		return &issue
	}
	if m.Qty() < 0 {
		issue := NewIssue(IssueNegativeQuantity, source, m.ID,
			fmt.Sprintf("quantity %d is negative", m.Qty()))
		return &issue
	}
	if m.UnitPrice.IsNegative() {
		issue := NewIssue(IssueMalformedRecord, source, m.ID,
			fmt.Sprintf("unit price %s is negative", m.UnitPrice.String()))
		return &issue
	}
	if _, err := m.Time(); err != nil {
		issue := NewIssue(IssueInvalidTimestamp, source, m.ID, err.Error())
		return &issue
	}
	return nil
}

// CheckPayment validates a payment before it may touch a running balance
func CheckPayment(p Payment) *Issue {
	if err := recordValidator().Struct(p); err != nil {
		issue := NewIssue(IssueMalformedRecord, SourceKindPayments, p.ID, describeValidation(err))
		return &issue
	}
	if !p.Amount.Valid {
		issue := NewIssue(IssueMalformedRecord, SourceKindPayments, p.ID, "missing Amount")
		return &issue
	}
	if _, err := p.Time(); err != nil {
		issue := NewIssue(IssueInvalidTimestamp, SourceKindPayments, p.ID, err.Error())
		return &issue
	}
	return nil
}

// describeValidation turns validator errors into a short reason
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("missing %s", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
