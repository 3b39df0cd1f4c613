package types

import "errors"

// Failure kinds for the watch pipeline. Every step wraps its underlying error
// with one of these so callers can classify with errors.Is; nothing is
// recovered internally, a failure in any step aborts the whole invocation.
var (
	// ErrConfigurationMissing means a required parameter store value is
	// absent or empty.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrBillingQueryFailed means the cost explorer call itself errored.
	ErrBillingQueryFailed = errors.New("billing query failed")

	// ErrNoCostData means the billing response contained no service group
	// with a positive amount, so there is nothing to convert or report.
	ErrNoCostData = errors.New("no cost data")

	// ErrConversionFailed means the exchange rate service errored or the
	// source currency unit could not be resolved.
	ErrConversionFailed = errors.New("currency conversion failed")

	// ErrIdentityLookupFailed means the account alias lookup errored.
	ErrIdentityLookupFailed = errors.New("identity lookup failed")

	// ErrNotificationFailed means the webhook POST did not complete.
	ErrNotificationFailed = errors.New("notification failed")
)
