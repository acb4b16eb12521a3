// Package classify turns an upstream error into a value from the closed
// taxonomy the rest of the cache reasons about. It is pure: no logging,
// no side effects, no retries. Callers decide policy.
package classify

import "strings"

// Kind is one member of the closed error taxonomy.
type Kind int

const (
	Unknown Kind = iota
	Unauthorized
	RateLimited
	MissingSecret
	UnknownOrg
	InvalidToken
	Transport
	InvalidSecretId
	UnknownKey
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "Unauthorized"
	case RateLimited:
		return "RateLimited"
	case MissingSecret:
		return "MissingSecret"
	case UnknownOrg:
		return "UnknownOrg"
	case InvalidToken:
		return "InvalidToken"
	case Transport:
		return "Transport"
	case InvalidSecretId:
		return "InvalidSecretId"
	case UnknownKey:
		return "UnknownKey"
	default:
		return "Unknown"
	}
}

// Error wraps an upstream failure with its classified kind. The original
// message is preserved verbatim for Unknown kinds (spec §7: propagated
// verbatim).
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// rule is one row of the fixed substring table. Rules are evaluated in
// order; the first match wins.
type rule struct {
	kind  Kind
	match func(msg string) bool
}

func contains(sub string) func(string) bool {
	return func(msg string) bool { return strings.Contains(msg, sub) }
}

func containsAll(subs ...string) func(string) bool {
	return func(msg string) bool {
		for _, s := range subs {
			if !strings.Contains(msg, s) {
				return false
			}
		}
		return true
	}
}

func containsAny(subs ...string) func(string) bool {
	return func(msg string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

// table is the exact contract from spec §4.6. Order matters: 404+"Secret
// not found" must be checked before the generic 400/InvalidToken rule, and
// "404 Not Found"+"Resource not found" is distinct from MissingSecret.
var table = []rule{
	{Unauthorized, containsAny("401 Unauthorized", "401 ")},
	{RateLimited, containsAny("429 Too Many Requests", "429 ")},
	{MissingSecret, containsAll("404 Not Found", "Secret not found")},
	{UnknownOrg, containsAll("404 Not Found", "Resource not found")},
	{InvalidToken, containsAny("400 Bad Request", "Access token is not in a valid format")},
	{Transport, contains("error sending request for url")},
	{InvalidSecretId, contains("Invalid command value: UUID parsing failed")},
}

// Classify maps a raw upstream error into the closed taxonomy. A nil err
// classifies as Unknown with an empty message; callers should not call
// Classify(nil) in the happy path.
func Classify(err error) *Error {
	if err == nil {
		return &Error{Kind: Unknown}
	}
	msg := err.Error()
	for _, r := range table {
		if r.match(msg) {
			return &Error{Kind: r.kind, Message: msg}
		}
	}
	return &Error{Kind: Unknown, Message: msg}
}

// ClassifyTransport marks any transport/network failure surfaced directly
// by the HTTP client (as opposed to an upstream-reported status string) as
// Transport, per the table's catch-all row.
func ClassifyTransport(err error) *Error {
	if err == nil {
		return &Error{Kind: Unknown}
	}
	return &Error{Kind: Transport, Message: err.Error()}
}

// New builds a classified error directly, for call sites (e.g. the cache)
// that detect a condition locally rather than parsing an upstream message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}
