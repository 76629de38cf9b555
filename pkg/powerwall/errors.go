package powerwall

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorKind represents the category of error that occurred
type ErrorKind int

const (
	// ErrKindUnreachable indicates the gateway could not be reached (refused, timeout, DNS, ...)
	ErrKindUnreachable ErrorKind = iota
	// ErrKindAccessDenied indicates rejected credentials or a missing/expired session
	ErrKindAccessDenied
	// ErrKindAPI indicates an error status not covered by a more specific kind
	ErrKindAPI
	// ErrKindMissingAttribute indicates an expected field was absent or null
	ErrKindMissingAttribute
	// ErrKindInvalidAttribute indicates a field was present but had the wrong JSON type
	ErrKindInvalidAttribute
	// ErrKindUnknownEnumValue indicates a value outside a known closed set
	ErrKindUnknownEnumValue
	// ErrKindInvalidVersion indicates a malformed firmware version string
	ErrKindInvalidVersion
)

// NetworkErrorSubtype provides more specific classification of unreachable errors
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
	NetworkErrorBadGateway
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case ErrKindUnreachable:
		return "Powerwall Unreachable"
	case ErrKindAccessDenied:
		return "Access Denied"
	case ErrKindAPI:
		return "API Error"
	case ErrKindMissingAttribute:
		return "Missing Attribute"
	case ErrKindInvalidAttribute:
		return "Invalid Attribute"
	case ErrKindUnknownEnumValue:
		return "Unknown Enum Value"
	case ErrKindInvalidVersion:
		return "Invalid Version"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error is returned by every operation of this package.
// Kind decides which of the remaining fields carry information.
type Error struct {
	Kind           ErrorKind           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (API and access denied errors)
	Body           string              // Raw response body (API errors)
	Resource       string              // Request path the error relates to
	Category       string              // Response category label (attribute errors)
	Attribute      string              // Attribute name or dotted path (attribute errors)
	Value          string              // Offending value (enum and version errors)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // Unreachable errors only
	Host           string              // Gateway host (unreachable errors)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport failure and returns an unreachable error
// with the most specific subtype that applies.
func ClassifyNetworkError(err error, host string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &Error{
			Kind:           ErrKindUnreachable,
			Message:        "request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Host:           host,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Kind:           ErrKindUnreachable,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Host:           host,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &Error{
				Kind:           ErrKindUnreachable,
				Message:        "gateway refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Host:           host,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &Error{
				Kind:           ErrKindUnreachable,
				Message:        "host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Host:           host,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &Error{
				Kind:           ErrKindUnreachable,
				Message:        "network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Host:           host,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return ClassifyNetworkError(urlErr.Err, host)
	}

	return &Error{
		Kind:           ErrKindUnreachable,
		Message:        "network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Host:           host,
	}
}

func newUnreachableError(message string, err error, host string) *Error {
	classified := ClassifyNetworkError(err, host)
	if classified == nil {
		return &Error{Kind: ErrKindUnreachable, Message: message, Host: host}
	}
	classified.Message = message + ": " + classified.Message
	return classified
}

func newBadGatewayError(resource, host string) *Error {
	return &Error{
		Kind:           ErrKindUnreachable,
		Message:        fmt.Sprintf("gateway behind %s is not reachable (HTTP 502)", resource),
		StatusCode:     502,
		Resource:       resource,
		NetworkSubtype: NetworkErrorBadGateway,
		Host:           host,
	}
}

func newAccessDeniedError(resource string, statusCode int, serverError, serverMessage string) *Error {
	msg := fmt.Sprintf("access denied for resource %s", resource)
	if serverError != "" {
		msg += ": " + serverError
	}
	if serverMessage != "" {
		msg += " (" + serverMessage + ")"
	}
	return &Error{
		Kind:       ErrKindAccessDenied,
		Message:    msg,
		StatusCode: statusCode,
		Resource:   resource,
	}
}

func newAPIError(resource string, statusCode int, body string, message string) *Error {
	return &Error{
		Kind:       ErrKindAPI,
		Message:    message,
		StatusCode: statusCode,
		Body:       body,
		Resource:   resource,
	}
}

func newMissingAttributeError(category, attribute string) *Error {
	msg := fmt.Sprintf("the attribute '%s' is expected in the response but is missing", attribute)
	if category != "" {
		msg = fmt.Sprintf("the attribute '%s' is expected in the %s response but is missing", attribute, category)
	}
	return &Error{
		Kind:      ErrKindMissingAttribute,
		Message:   msg,
		Category:  category,
		Attribute: attribute,
	}
}

func newInvalidAttributeError(category, attribute, want string, got any) *Error {
	return &Error{
		Kind:      ErrKindInvalidAttribute,
		Message:   fmt.Sprintf("the attribute '%s' in the %s response should be %s, got %T", attribute, category, want, got),
		Category:  category,
		Attribute: attribute,
		Value:     fmt.Sprintf("%v", got),
	}
}

func newUnknownEnumValueError(enum, value string) *Error {
	return &Error{
		Kind:     ErrKindUnknownEnumValue,
		Message:  fmt.Sprintf("'%s' is not a known %s value", value, enum),
		Category: enum,
		Value:    value,
	}
}

func newInvalidVersionError(value string, err error) *Error {
	return &Error{
		Kind:    ErrKindInvalidVersion,
		Message: fmt.Sprintf("invalid version '%s'", value),
		Value:   value,
		Err:     err,
	}
}

func kindOf(err error) (ErrorKind, bool) {
	var pwErr *Error
	if errors.As(err, &pwErr) {
		return pwErr.Kind, true
	}
	return 0, false
}

func isKind(err error, kind ErrorKind) bool {
	k, ok := kindOf(err)
	return ok && k == kind
}

// IsUnreachable checks if an error means the gateway could not be reached
func IsUnreachable(err error) bool { return isKind(err, ErrKindUnreachable) }

// IsAccessDenied checks if an error is an access denied error
func IsAccessDenied(err error) bool { return isKind(err, ErrKindAccessDenied) }

// IsAPIError checks if an error is a generic API error
func IsAPIError(err error) bool { return isKind(err, ErrKindAPI) }

// IsMissingAttribute checks if an error is a missing attribute error
func IsMissingAttribute(err error) bool { return isKind(err, ErrKindMissingAttribute) }

// IsInvalidAttribute checks if an error is a wrongly typed attribute error
func IsInvalidAttribute(err error) bool { return isKind(err, ErrKindInvalidAttribute) }

// IsUnknownEnumValue checks if an error is an unknown enum value error
func IsUnknownEnumValue(err error) bool { return isKind(err, ErrKindUnknownEnumValue) }

// IsInvalidVersion checks if an error is an invalid version error
func IsInvalidVersion(err error) bool { return isKind(err, ErrKindInvalidVersion) }

// TroubleshootingHint returns user-friendly troubleshooting advice for an error
func TroubleshootingHint(err error) string {
	var pwErr *Error
	if !errors.As(err, &pwErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch pwErr.Kind {
	case ErrKindUnreachable:
		hint := []string{"The gateway could not be reached."}
		switch pwErr.NetworkSubtype {
		case NetworkErrorTimeout:
			hint = append(hint, "Troubleshooting:",
				"  • Check that the gateway is powered on",
				"  • Try increasing the timeout with --timeout")
		case NetworkErrorConnectionRefused:
			hint = append(hint, "Troubleshooting:",
				"  • The gateway web server may be restarting, wait a minute and retry",
				"  • Verify the host uses HTTPS on port 443")
		case NetworkErrorDNS:
			hint = append(hint, "Troubleshooting:",
				"  • Use the IP address instead of hostname",
				"  • Check your network DNS settings")
		case NetworkErrorBadGateway:
			hint = append(hint, "Troubleshooting:",
				"  • The gateway reported that its backend is down",
				"  • Older firmware does this while the site controller restarts")
		default:
			hint = append(hint, "Troubleshooting:",
				"  • Verify the gateway address is correct",
				"  • Ensure you're on the same network as the gateway")
			if pwErr.Host != "" {
				hint = append(hint, "  • Try pinging the gateway: ping "+pwErr.Host)
			}
		}
		return strings.Join(hint, "\n")

	case ErrKindAccessDenied:
		return strings.Join([]string{
			"Access was denied.",
			"Troubleshooting:",
			"  • Check the email and password (the customer password is printed on the gateway label)",
			"  • The session may have expired, log in again",
			"  • Some resources require the installer role",
		}, "\n")

	case ErrKindAPI:
		return fmt.Sprintf("The gateway returned HTTP %d. Check the request parameters.", pwErr.StatusCode)

	case ErrKindMissingAttribute, ErrKindInvalidAttribute, ErrKindUnknownEnumValue:
		return strings.Join([]string{
			"The gateway response did not have the expected shape.",
			"This usually means a firmware update changed the API.",
			"Troubleshooting:",
			"  • Check the firmware version with the 'firmware' command",
			"  • Pin the version explicitly with --pin if detection picks the wrong code path",
		}, "\n")

	case ErrKindInvalidVersion:
		return "Version strings must look like 1.46.0."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// ShortErrorMessage returns a concise, user-friendly error message
func ShortErrorMessage(err error) string {
	var pwErr *Error
	if !errors.As(err, &pwErr) {
		return err.Error()
	}

	switch pwErr.Kind {
	case ErrKindUnreachable:
		switch pwErr.NetworkSubtype {
		case NetworkErrorTimeout:
			return "Gateway not responding (timeout)"
		case NetworkErrorConnectionRefused:
			return "Gateway refused connection"
		case NetworkErrorDNS:
			return "Cannot resolve gateway hostname"
		default:
			return "Gateway unreachable - check network connection"
		}
	case ErrKindAccessDenied:
		return "Access denied - check credentials"
	case ErrKindAPI:
		return fmt.Sprintf("Gateway error (HTTP %d)", pwErr.StatusCode)
	case ErrKindMissingAttribute:
		return fmt.Sprintf("Response is missing '%s'", pwErr.Attribute)
	default:
		return pwErr.Message
	}
}
