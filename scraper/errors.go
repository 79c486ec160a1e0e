package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/marketplace-capture/parser"
)

// Kind names a failure class in the error ledger.
type Kind string

const (
	KindElementMissing         Kind = "ElementMissing"
	KindElementStale           Kind = "ElementStale"
	KindElementNotInteractable Kind = "ElementNotInteractable"
	KindWaitTimeout            Kind = "WaitTimeout"
	KindPayloadKeyMissing      Kind = "PayloadKeyMissing"
	KindPayloadDecodeError     Kind = "PayloadDecodeError"
	KindUnclassified           Kind = "Unclassified"
)

// Tier decides how the loop reacts to a failure.
type Tier int

const (
	// TierSkip records the failure and moves on without navigating back.
	TierSkip Tier = iota + 1
	// TierRecover records the failure, navigates back once and moves on.
	TierRecover
	// TierAbort records the failure and stops the loop.
	TierAbort
)

func (t Tier) String() string {
	switch t {
	case TierSkip:
		return "skip"
	case TierRecover:
		return "recover"
	case TierAbort:
		return "abort"
	}
	return "unknown"
}

// ErrElementMissing indicates the listing element was not in the page.
type ErrElementMissing struct {
	Err error
}

func (e ErrElementMissing) Error() string {
	return fmt.Errorf("element_missing: %w", e.Err).Error()
}

func (e ErrElementMissing) Unwrap() error {
	return e.Err
}

// ErrElementStale indicates the element was detached after it was located.
type ErrElementStale struct {
	Err error
}

func (e ErrElementStale) Error() string {
	return fmt.Errorf("element_stale: %w", e.Err).Error()
}

func (e ErrElementStale) Unwrap() error {
	return e.Err
}

// ErrElementNotInteractable indicates the element could not receive a click.
type ErrElementNotInteractable struct {
	Err error
}

func (e ErrElementNotInteractable) Error() string {
	return fmt.Errorf("element_not_interactable: %w", e.Err).Error()
}

func (e ErrElementNotInteractable) Unwrap() error {
	return e.Err
}

// ErrWaitTimeout indicates a bounded wait on the page expired.
type ErrWaitTimeout struct {
	Err error
}

func (e ErrWaitTimeout) Error() string {
	return fmt.Errorf("wait_timeout: %w", e.Err).Error()
}

func (e ErrWaitTimeout) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Context cancellation is never recoverable and is
// reported as Unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnclassified
	}
	if errors.Is(err, context.Canceled) {
		return KindUnclassified
	}
	var missing ErrElementMissing
	if errors.As(err, &missing) {
		return KindElementMissing
	}
	var stale ErrElementStale
	if errors.As(err, &stale) {
		return KindElementStale
	}
	var blocked ErrElementNotInteractable
	if errors.As(err, &blocked) {
		return KindElementNotInteractable
	}
	var timeout ErrWaitTimeout
	if errors.As(err, &timeout) {
		return KindWaitTimeout
	}
	var keyMissing *parser.KeyMissingError
	if errors.As(err, &keyMissing) {
		return KindPayloadKeyMissing
	}
	var decode *parser.DecodeError
	if errors.As(err, &decode) {
		return KindPayloadDecodeError
	}
	return KindUnclassified
}

// TierOf returns the handling tier of a failure kind.
func TierOf(k Kind) Tier {
	switch k {
	case KindElementMissing, KindElementStale, KindElementNotInteractable:
		return TierSkip
	case KindWaitTimeout, KindPayloadKeyMissing, KindPayloadDecodeError:
		return TierRecover
	}
	return TierAbort
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	return string(KindOf(err))
}
