// Package apperr defines the error taxonomy surfaced to storefront callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the coarse error class used to choose a response status
type Kind string

// Error kinds
const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUpstream     Kind = "upstream_failure"
	KindValidation   Kind = "validation_failure"
)

// Code identifies the specific business rule that failed
type Code string

// Error codes
const (
	CodeUnauthorized          Code = "Unauthorized"
	CodeForbidden             Code = "Forbidden"
	CodeNotFound              Code = "NotFound"
	CodeValidation            Code = "ValidationFailure"
	CodeUpstream              Code = "UpstreamFailure"
	CodeCartConflict          Code = "CartConflict"
	CodeDuplicateSubscription Code = "DuplicateSubscription"
	CodeProductNotFound       Code = "ProductNotFound"
	CodeNoPricesAvailable     Code = "NoPricesAvailable"
	CodeDiscountInvalid       Code = "DiscountInvalid"
	CodeDiscountNotActive     Code = "DiscountNotActive"
	CodeCustomerNotFound      Code = "CustomerNotFound"
	CodeOrderNotFound         Code = "OrderNotFound"
	CodeRefundExists          Code = "RefundExists"
	CodeInvalidTransition     Code = "InvalidTransition"
	CodeAlreadyRedeemed       Code = "AlreadyRedeemed"
	CodeRecipientMismatch     Code = "RecipientMismatch"
	CodeInvoiceNotPaid        Code = "InvoiceNotPaid"
)

// Error is a classified, user-presentable error
type Error struct {
	Kind    Kind
	Code    Code
	Message string

	// InvoiceID is surfaced to the caller so support can reconcile the payment
	InvoiceID string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so sentinel values work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Sentinels for errors.Is checks
var (
	ErrUnauthorized          = &Error{Kind: KindUnauthorized, Code: CodeUnauthorized}
	ErrForbidden             = &Error{Kind: KindForbidden, Code: CodeForbidden}
	ErrCartConflict          = &Error{Kind: KindConflict, Code: CodeCartConflict}
	ErrDuplicateSubscription = &Error{Kind: KindConflict, Code: CodeDuplicateSubscription}
	ErrProductNotFound       = &Error{Kind: KindNotFound, Code: CodeProductNotFound}
	ErrNoPricesAvailable     = &Error{Kind: KindNotFound, Code: CodeNoPricesAvailable}
	ErrDiscountInvalid       = &Error{Kind: KindValidation, Code: CodeDiscountInvalid}
	ErrDiscountNotActive     = &Error{Kind: KindNotFound, Code: CodeDiscountNotActive}
	ErrCustomerNotFound      = &Error{Kind: KindNotFound, Code: CodeCustomerNotFound}
	ErrOrderNotFound         = &Error{Kind: KindNotFound, Code: CodeOrderNotFound}
	ErrRefundExists          = &Error{Kind: KindConflict, Code: CodeRefundExists}
	ErrInvalidTransition     = &Error{Kind: KindConflict, Code: CodeInvalidTransition}
	ErrGiftNotFound          = &Error{Kind: KindNotFound, Code: CodeNotFound}
	ErrAlreadyRedeemed       = &Error{Kind: KindConflict, Code: CodeAlreadyRedeemed}
	ErrRecipientMismatch     = &Error{Kind: KindForbidden, Code: CodeRecipientMismatch}
	ErrInvoiceNotPaid        = &Error{Kind: KindConflict, Code: CodeInvoiceNotPaid}
)

// New builds an error from a sentinel with a specific message
func New(sentinel *Error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validation reports malformed or missing request fields
func Validation(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound reports an absent entity
func NotFound(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// Upstream wraps a failed gateway call. The message stays generic; err is only logged.
func Upstream(err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindUpstream,
		Code:    CodeUpstream,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// WithInvoice attaches the invoice id surfaced for manual reconciliation
func (e *Error) WithInvoice(invoiceID string) *Error {
	cp := *e
	cp.InvoiceID = invoiceID
	return &cp
}

// Wrap attaches a cause
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// As extracts an *Error from err
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// HTTPStatus maps a kind to its response status
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var unsafeChars = strings.NewReplacer(`"`, "", "'", "", "`", "")

// PublicMessage returns a message safe to show callers: classified errors keep
// their own message with quote characters stripped, anything else is generic.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok || e.Message == "" {
		return "Something went wrong, please try again"
	}
	return unsafeChars.Replace(e.Message)
}
