// Package errs defines the closed set of failure kinds the oracle reports.
// Every operation fails with exactly one of these, wrapped with a
// human-readable message; the HTTP layer maps kinds to status codes.
package errs

import errorsmod "cosmossdk.io/errors"

const codespace = "cashgame"

var (
	ErrBadRequest   = errorsmod.Register(codespace, 2, "bad request")
	ErrUnauthorized = errorsmod.Register(codespace, 3, "unauthorized")
	ErrForbidden    = errorsmod.Register(codespace, 4, "forbidden")
	ErrNotFound     = errorsmod.Register(codespace, 5, "not found")
	ErrConflict     = errorsmod.Register(codespace, 6, "conflict")
)
