// Package status defines the uniform response envelope of the control API.
//
// Every response body has the shape
//
//	{"<Type>": {"code": N, "type": "<Type>", "message": "...", "kind": "Error"|"OK",
//	            "docs": {"url": "...", "message": "..."}}, ...extra}
//
// where extra fields (token, code, url, codes, redirect) sit next to the
// status key.
package status

import (
	"net/http"
	"strings"
)

// Kind enumerates every status the gateway can answer with.
type Kind int

const (
	GenericResponse Kind = iota
	BadTokenException
	MissingPortException
	MissingTokenException
	MissingTokenVerifyException
	BadTokenVerifyException
	MissingCodeException
	CodeNotFoundException
	VerifyTokenCreated
	VerifyTokenAccepted
	CodeCreated
	ListGiven
	CodeDeleted
	TooManyRequestsException
	InternalException
	NotFoundException
	UnauthorizeException
)

// BaseCode is the numeric code of the first sequential status.
const BaseCode = 2400

// DocsMessage accompanies every docs link.
const DocsMessage = "Link to the documentation for more precision"

type entry struct {
	name    string
	message string
	// fixed overrides the sequential numbering when non-zero.
	fixed int
	http  int
}

var table = [...]entry{
	GenericResponse:             {name: "GenericResponse", message: "Null based response"},
	BadTokenException:           {name: "BadTokenException", message: "A bad token has been provided"},
	MissingPortException:        {name: "MissingPortException", message: "No port was provided"},
	MissingTokenException:       {name: "MissingTokenException", message: "No token was provided"},
	MissingTokenVerifyException: {name: "MissingTokenVerifyException", message: "No token was provided for verifying the account"},
	BadTokenVerifyException:     {name: "BadTokenVerifyException", message: "A bad token has been provided for verifying the account"},
	MissingCodeException:        {name: "MissingCodeException", message: "No code was provided"},
	CodeNotFoundException:       {name: "CodeNotFoundException", message: "This code is expired or doesn't exist"},
	VerifyTokenCreated:          {name: "VerifyTokenCreated", message: "A new token has been send to the webhook"},
	VerifyTokenAccepted:         {name: "VerifyTokenAccepted", message: "A new token has been created for you"},
	CodeCreated:                 {name: "CodeCreated", message: "A new code has been created for you"},
	ListGiven:                   {name: "ListGiven", message: "The list of codes"},
	CodeDeleted:                 {name: "CodeDeleted", message: "The code has been deleted"},
	TooManyRequestsException:    {name: "TooManyRequestsException", message: "Too many requests, try again later", http: http.StatusTooManyRequests},
	InternalException:           {name: "InternalException", message: "An internal error occurred", http: http.StatusInternalServerError},
	NotFoundException:           {name: "NotFoundException", message: "Page not found", fixed: 404, http: http.StatusNotFound},
	UnauthorizeException:        {name: "UnauthorizeException", message: "Unauthorize, you need to login", fixed: 401, http: http.StatusUnauthorized},
}

func (k Kind) valid() bool { return k >= 0 && int(k) < len(table) }

// String returns the status type name, e.g. "CodeCreated".
func (k Kind) String() string {
	if !k.valid() {
		return "GenericResponse"
	}
	return table[k].name
}

// Code is the numeric status code carried in the envelope.
func (k Kind) Code() int {
	if !k.valid() {
		return BaseCode
	}
	if table[k].fixed != 0 {
		return table[k].fixed
	}
	return BaseCode + int(k)
}

// Message is the human-readable status description.
func (k Kind) Message() string {
	if !k.valid() {
		return table[GenericResponse].message
	}
	return table[k].message
}

// IsError reports whether the status denotes a failure. Any type whose name
// contains "Exception" is an error.
func (k Kind) IsError() bool {
	return strings.Contains(k.String(), "Exception")
}

// KindLabel is "Error" or "OK".
func (k Kind) KindLabel() string {
	if k.IsError() {
		return "Error"
	}
	return "OK"
}

// HTTPStatus is the HTTP status the envelope is delivered with. Most errors
// go out as 400 regardless of their kind.
func (k Kind) HTTPStatus() int {
	if k.valid() && table[k].http != 0 {
		return table[k].http
	}
	if k.IsError() {
		return http.StatusBadRequest
	}
	return http.StatusOK
}

// DocsPath is the path of the status page on the docs site.
func (k Kind) DocsPath() string {
	return "/status/" + k.String()
}

// Kinds lists every declared status in table order.
func Kinds() []Kind {
	out := make([]Kind, len(table))
	for i := range table {
		out[i] = Kind(i)
	}
	return out
}

// Lookup resolves a type name back to its Kind.
func Lookup(name string) (Kind, bool) {
	for i, e := range table {
		if e.name == name {
			return Kind(i), true
		}
	}
	return 0, false
}
