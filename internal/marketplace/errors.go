package marketplace

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeInvalidSid            Code = "INVALID_SID"
	CodeEmptyManifest         Code = "EMPTY_MANIFEST"
	CodeEmptyManifestProtocol Code = "EMPTY_MANIFEST_PROTOCOL"
	CodeZeroDuration          Code = "ZERO_DURATION"
	CodeNegativePrice         Code = "NEGATIVE_PRICE"
	CodeExpireOverflow        Code = "EXPIRE_OVERFLOW"

	CodeServiceNotFound  Code = "SERVICE_NOT_FOUND"
	CodeVersionNotFound  Code = "VERSION_NOT_FOUND"
	CodeOfferNotFound    Code = "OFFER_NOT_FOUND"
	CodePurchaseNotFound Code = "PURCHASE_NOT_FOUND"

	CodeDuplicateSid        Code = "DUPLICATE_SID"
	CodeDuplicateHash       Code = "DUPLICATE_HASH"
	CodeAlreadyPauser       Code = "ALREADY_PAUSER"
	CodeAlreadyBootstrapped Code = "ALREADY_BOOTSTRAPPED"

	CodeNotServiceOwner Code = "NOT_SERVICE_OWNER"
	CodeNotOwner        Code = "NOT_OWNER"
	CodeNotPauser       Code = "NOT_PAUSER"
	CodePaused          Code = "PAUSED"
	CodeNotPaused       Code = "NOT_PAUSED"
	CodeZeroAddress     Code = "ZERO_ADDRESS"
	CodeSameOwner       Code = "SAME_OWNER"

	CodeNoVersionYet                  Code = "NO_VERSION_YET"
	CodeOfferNotActive                Code = "OFFER_NOT_ACTIVE"
	CodeOwnerCannotPurchaseOwnService Code = "OWNER_CANNOT_PURCHASE_OWN_SERVICE"
	CodeAlreadyPermanent              Code = "ALREADY_PERMANENT"
	CodeInsufficientBalance           Code = "INSUFFICIENT_BALANCE"
	CodeNotApproved                   Code = "NOT_APPROVED"
	CodeTransferFailed                Code = "TRANSFER_FAILED"
)

// Kind groups codes for callers that only care about the category.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindPurchase      Kind = "purchase"
)

var kinds = map[Code]Kind{
	CodeInvalidSid:                    KindValidation,
	CodeEmptyManifest:                 KindValidation,
	CodeEmptyManifestProtocol:         KindValidation,
	CodeZeroDuration:                  KindValidation,
	CodeNegativePrice:                 KindValidation,
	CodeExpireOverflow:                KindValidation,
	CodeServiceNotFound:               KindNotFound,
	CodeVersionNotFound:               KindNotFound,
	CodeOfferNotFound:                 KindNotFound,
	CodePurchaseNotFound:              KindNotFound,
	CodeDuplicateSid:                  KindConflict,
	CodeDuplicateHash:                 KindConflict,
	CodeAlreadyPauser:                 KindConflict,
	CodeAlreadyBootstrapped:           KindConflict,
	CodeNotServiceOwner:               KindAuthorization,
	CodeNotOwner:                      KindAuthorization,
	CodeNotPauser:                     KindAuthorization,
	CodePaused:                        KindAuthorization,
	CodeNotPaused:                     KindAuthorization,
	CodeZeroAddress:                   KindAuthorization,
	CodeSameOwner:                     KindAuthorization,
	CodeNoVersionYet:                  KindPurchase,
	CodeOfferNotActive:                KindPurchase,
	CodeOwnerCannotPurchaseOwnService: KindPurchase,
	CodeAlreadyPermanent:              KindPurchase,
	CodeInsufficientBalance:           KindPurchase,
	CodeNotApproved:                   KindPurchase,
	CodeTransferFailed:                KindPurchase,
}

// Error is a marketplace rejection. Two errors match under errors.Is when
// their codes are equal.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Kind returns the category of e.
func (e *Error) Kind() Kind { return kinds[e.Code] }

var (
	ErrInvalidSid            = &Error{Code: CodeInvalidSid, Message: "invalid service identifier"}
	ErrEmptyManifest         = &Error{Code: CodeEmptyManifest, Message: "manifest is empty"}
	ErrEmptyManifestProtocol = &Error{Code: CodeEmptyManifestProtocol, Message: "manifest protocol is empty"}
	ErrZeroDuration          = &Error{Code: CodeZeroDuration, Message: "offer duration must not be zero"}
	ErrNegativePrice         = &Error{Code: CodeNegativePrice, Message: "offer price must not be negative"}
	ErrExpireOverflow        = &Error{Code: CodeExpireOverflow, Message: "expiration does not fit a timestamp"}

	ErrServiceNotFound  = &Error{Code: CodeServiceNotFound, Message: "service not found"}
	ErrVersionNotFound  = &Error{Code: CodeVersionNotFound, Message: "version not found"}
	ErrOfferNotFound    = &Error{Code: CodeOfferNotFound, Message: "offer not found"}
	ErrPurchaseNotFound = &Error{Code: CodePurchaseNotFound, Message: "purchase not found"}

	ErrDuplicateSid        = &Error{Code: CodeDuplicateSid, Message: "service's sid is already used"}
	ErrDuplicateHash       = &Error{Code: CodeDuplicateHash, Message: "version's hash already exists"}
	ErrAlreadyPauser       = &Error{Code: CodeAlreadyPauser, Message: "account is already a pauser"}
	ErrAlreadyBootstrapped = &Error{Code: CodeAlreadyBootstrapped, Message: "marketplace already has an owner"}

	ErrNotServiceOwner = &Error{Code: CodeNotServiceOwner, Message: "service owner is not the same as the sender"}
	ErrNotOwner        = &Error{Code: CodeNotOwner, Message: "caller is not the marketplace owner"}
	ErrNotPauser       = &Error{Code: CodeNotPauser, Message: "account does not have the pauser role"}
	ErrPaused          = &Error{Code: CodePaused, Message: "marketplace is paused"}
	ErrNotPaused       = &Error{Code: CodeNotPaused, Message: "marketplace is not paused"}
	ErrZeroAddress     = &Error{Code: CodeZeroAddress, Message: "address is the zero address"}
	ErrSameOwner       = &Error{Code: CodeSameOwner, Message: "new owner is the current owner"}

	ErrNoVersionYet                  = &Error{Code: CodeNoVersionYet, Message: "service has no version yet"}
	ErrOfferNotActive                = &Error{Code: CodeOfferNotActive, Message: "offer is not active"}
	ErrOwnerCannotPurchaseOwnService = &Error{Code: CodeOwnerCannotPurchaseOwnService, Message: "service owner cannot purchase its own service"}
	ErrAlreadyPermanent              = &Error{Code: CodeAlreadyPermanent, Message: "purchaser already has permanent access"}
	ErrInsufficientBalance           = &Error{Code: CodeInsufficientBalance, Message: "purchaser balance is lower than the price"}
	ErrNotApproved                   = &Error{Code: CodeNotApproved, Message: "marketplace is not approved to spend the price"}
	ErrTransferFailed                = &Error{Code: CodeTransferFailed, Message: "token transfer failed"}
)

func wrap(base *Error, err error) *Error {
	return &Error{Code: base.Code, Message: base.Message, Err: err}
}

// AsError extracts the marketplace error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
