// services/errors.go
package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrorKind is the closed set of reasons a domain operation can be refused.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindInvalidInput       ErrorKind = "INVALID_INPUT"
	KindInvalidTransition  ErrorKind = "INVALID_TRANSITION"
	KindNotWaiting         ErrorKind = "NOT_WAITING"
	KindAlreadyHasOpponent ErrorKind = "ALREADY_HAS_OPPONENT"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindNotActive          ErrorKind = "NOT_ACTIVE"
	KindWrongRound         ErrorKind = "WRONG_ROUND"
	KindDuplicate          ErrorKind = "DUPLICATE_SUBMISSION"
	KindNotParticipant     ErrorKind = "NOT_PARTICIPANT"
	KindVacant             ErrorKind = "VACANT"
	KindSelfChallenge      ErrorKind = "SELF_CHALLENGE"
	KindAlreadyPending     ErrorKind = "ALREADY_PENDING"
	KindInsufficientFunds  ErrorKind = "INSUFFICIENT_FUNDS"
	KindNotChallengeable   ErrorKind = "NOT_CHALLENGEABLE"
	KindFull               ErrorKind = "FULL"
	KindBelowMinElo        ErrorKind = "BELOW_MIN_ELO"
	KindNotOpen            ErrorKind = "NOT_OPEN"
	KindAlreadyRegistered  ErrorKind = "ALREADY_REGISTERED"
	KindAlreadySettled     ErrorKind = "ALREADY_SETTLED"
	KindNotCompleted       ErrorKind = "NOT_COMPLETED"
	KindChallengeExpired   ErrorKind = "CHALLENGE_EXPIRED"
	KindAppealNotAllowed   ErrorKind = "APPEAL_NOT_ALLOWED"
	KindBanned             ErrorKind = "BANNED"
	KindAlreadyClaimed     ErrorKind = "ALREADY_CLAIMED"
)

// Category groups kinds by how a caller should react.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryAuthorization Category = "authorization"
	CategoryResource      Category = "resource"
	CategoryConsistency   Category = "consistency"
)

var kindCategories = map[ErrorKind]Category{
	KindNotFound:           CategoryResource,
	KindInvalidInput:       CategoryValidation,
	KindInvalidTransition:  CategoryValidation,
	KindNotWaiting:         CategoryValidation,
	KindAlreadyHasOpponent: CategoryValidation,
	KindForbidden:          CategoryAuthorization,
	KindNotActive:          CategoryValidation,
	KindWrongRound:         CategoryValidation,
	KindDuplicate:          CategoryValidation,
	KindNotParticipant:     CategoryAuthorization,
	KindVacant:             CategoryResource,
	KindSelfChallenge:      CategoryValidation,
	KindAlreadyPending:     CategoryValidation,
	KindInsufficientFunds:  CategoryResource,
	KindNotChallengeable:   CategoryValidation,
	KindFull:               CategoryResource,
	KindBelowMinElo:        CategoryResource,
	KindNotOpen:            CategoryValidation,
	KindAlreadyRegistered:  CategoryValidation,
	KindAlreadySettled:     CategoryConsistency,
	KindNotCompleted:       CategoryValidation,
	KindChallengeExpired:   CategoryValidation,
	KindAppealNotAllowed:   CategoryValidation,
	KindBanned:             CategoryAuthorization,
	KindAlreadyClaimed:     CategoryConsistency,
}

// Category returns the kind's category; unknown kinds are validation errors.
func (k ErrorKind) Category() Category {
	if c, ok := kindCategories[k]; ok {
		return c
	}
	return CategoryValidation
}

// Error is a refused domain operation. Two errors match under errors.Is when their kinds match.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrNotWaiting         = &Error{Kind: KindNotWaiting}
	ErrAlreadyHasOpponent = &Error{Kind: KindAlreadyHasOpponent}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrNotActive          = &Error{Kind: KindNotActive}
	ErrWrongRound         = &Error{Kind: KindWrongRound}
	ErrDuplicate          = &Error{Kind: KindDuplicate}
	ErrNotParticipant     = &Error{Kind: KindNotParticipant}
	ErrVacant             = &Error{Kind: KindVacant}
	ErrSelfChallenge      = &Error{Kind: KindSelfChallenge}
	ErrAlreadyPending     = &Error{Kind: KindAlreadyPending}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds}
	ErrNotChallengeable   = &Error{Kind: KindNotChallengeable}
	ErrFull               = &Error{Kind: KindFull}
	ErrBelowMinElo        = &Error{Kind: KindBelowMinElo}
	ErrNotOpen            = &Error{Kind: KindNotOpen}
	ErrAlreadyRegistered  = &Error{Kind: KindAlreadyRegistered}
	ErrAlreadySettled     = &Error{Kind: KindAlreadySettled}
	ErrNotCompleted       = &Error{Kind: KindNotCompleted}
	ErrChallengeExpired   = &Error{Kind: KindChallengeExpired}
	ErrAppealNotAllowed   = &Error{Kind: KindAppealNotAllowed}
	ErrBanned             = &Error{Kind: KindBanned}
	ErrAlreadyClaimed     = &Error{Kind: KindAlreadyClaimed}
)

// KindOf extracts the domain kind from err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsBenign reports whether err means the requested effect has already happened.
func IsBenign(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.Category() == CategoryConsistency
}

// notFound maps gorm's missing-row error to a NOT_FOUND domain error and wraps the rest.
func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "%s %s not found", what, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

// invalidTransition is returned when a status has no edge for the requested event.
func invalidTransition(entity string, from, event interface{}) *Error {
	return newError(KindInvalidTransition, "%s cannot %v from %v", entity, event, from)
}
