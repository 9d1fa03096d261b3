package remote

import (
	"errors"
	"fmt"
	"net/http"

	"wp-fleet-manager/models"
)

// Kind classifies a remote failure for remediation messaging.
type Kind string

const (
	KindInvalidAPIKey            Kind = "InvalidApiKey"
	KindPluginNotInstalled       Kind = "PluginNotInstalled"
	KindSiteUnreachable          Kind = "SiteUnreachable"
	KindUnexpectedResponseFormat Kind = "UnexpectedResponseFormat"
	KindRemoteError              Kind = "RemoteError"
	KindInvalidCredential        Kind = "InvalidCredential"
	KindPartialUpdateFailure     Kind = "PartialUpdateFailure"
	KindUpdateInProgressTimeout  Kind = "UpdateInProgressTimeout"
)

// Remediation tells the operator what to do about a failure of this kind.
func (k Kind) Remediation() string {
	switch k {
	case KindInvalidAPIKey:
		return "The site rejected the API key. Re-enter or regenerate the key in the companion plugin settings."
	case KindPluginNotInstalled:
		return "The companion plugin was not found. Install and activate it on the site."
	case KindSiteUnreachable:
		return "The site could not be reached. Verify the URL and that the hosting is up."
	case KindUnexpectedResponseFormat:
		return "The site answered with a non-JSON page, often a maintenance or error page. Check the site and try again."
	case KindRemoteError:
		return "The companion plugin reported an error. Check the message and the site's error log."
	case KindInvalidCredential:
		return "The stored URL or API key is malformed. Edit the website and save valid values."
	case KindPartialUpdateFailure:
		return "Some items failed to update. Retry only the failed items."
	case KindUpdateInProgressTimeout:
		return "The update is taking longer than expected and may still be running. Re-check the site's updates in a few minutes before retrying."
	default:
		return ""
	}
}

// HTTPStatus maps a kind to the status the dashboard API responds with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidAPIKey:
		return http.StatusUnauthorized
	case KindPluginNotInstalled:
		return http.StatusNotFound
	case KindSiteUnreachable:
		return http.StatusGatewayTimeout
	case KindUnexpectedResponseFormat, KindRemoteError:
		return http.StatusBadGateway
	case KindInvalidCredential:
		return http.StatusUnprocessableEntity
	case KindUpdateInProgressTimeout:
		return http.StatusAccepted
	default:
		return http.StatusBadGateway
	}
}

// Error is the only error type returned by Client.
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so the sentinels below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

var (
	ErrInvalidAPIKey            = &Error{Kind: KindInvalidAPIKey}
	ErrPluginNotInstalled       = &Error{Kind: KindPluginNotInstalled}
	ErrSiteUnreachable          = &Error{Kind: KindSiteUnreachable}
	ErrUnexpectedResponseFormat = &Error{Kind: KindUnexpectedResponseFormat}
	ErrRemoteError              = &Error{Kind: KindRemoteError}
	ErrInvalidCredential        = &Error{Kind: KindInvalidCredential}
)

// NewError builds a classified error.
func NewError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// TimeoutError builds the SiteUnreachable error reported when a call ran
// out of time.
func TimeoutError(op string, err error) *Error {
	return &Error{Kind: KindSiteUnreachable, Op: op, Message: "request timed out", Timeout: true, Err: err}
}

// KindOf returns the kind of err, or "" when err is nil or unclassified.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}

// IsTimeout reports whether err is a remote call that ran out of time.
func IsTimeout(err error) bool {
	var rerr *Error
	return errors.As(err, &rerr) && rerr.Timeout
}

// ConnectionStatusFor derives a website's connection status from the result
// of its most recent remote call.
func ConnectionStatusFor(err error) models.ConnectionStatus {
	if err == nil {
		return models.ConnectionConnected
	}
	switch KindOf(err) {
	case KindInvalidAPIKey, KindPluginNotInstalled, KindSiteUnreachable, KindInvalidCredential:
		return models.ConnectionError
	case KindRemoteError:
		// The plugin answered with a well-formed error, so the site is reachable.
		return models.ConnectionConnected
	default:
		return models.ConnectionUnknown
	}
}
