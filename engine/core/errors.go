package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies data-access failures so callers can pick a policy
// (abort startup, surface to the client, retry) without inspecting drivers.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindConnection    ErrorKind = "connection"
	KindMigration     ErrorKind = "migration"
	KindStore         ErrorKind = "store"
	KindDecode        ErrorKind = "decode"
	KindValidation    ErrorKind = "validation"
)

// Kind sentinels. Match them with errors.Is against any *Error.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrMigration     = errors.New("migration error")
	ErrStore         = errors.New("store error")
	ErrDecode        = errors.New("decode error")
	ErrValidation    = errors.New("validation error")
)

// Precondition violations. They signal a startup-ordering bug, never a
// transient condition, and are not wrapped in *Error.
var (
	ErrAlreadyInitialized = errors.New("database already initialized")
	ErrNotInitialized     = errors.New("database pool not initialized")
)

// ErrDuplicate marks store errors caused by a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

var kindSentinels = map[ErrorKind]error{
	KindConfiguration: ErrConfiguration,
	KindConnection:    ErrConnection,
	KindMigration:     ErrMigration,
	KindStore:         ErrStore,
	KindDecode:        ErrDecode,
	KindValidation:    ErrValidation,
}

// Error is the unified data-access error.
type Error struct {
	Kind ErrorKind
	// Op names the failing operation, e.g. "users.find_one".
	Op string
	// Code holds the backing store error code (SQLSTATE) when known.
	Code string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	if sentinel, ok := kindSentinels[e.Kind]; ok && target == sentinel {
		return true
	}
	return false
}

func newError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewConfigurationError reports an invalid connection string or pool build failure.
func NewConfigurationError(op string, err error) error {
	return newError(KindConfiguration, op, err)
}

// NewConnectionError reports a checkout or liveness probe failure.
func NewConnectionError(op string, err error) error {
	return newError(KindConnection, op, err)
}

// NewMigrationError reports a failed migration run.
func NewMigrationError(op string, err error) error {
	return newError(KindMigration, op, err)
}

// NewStoreError reports a per-operation backing store failure.
func NewStoreError(op string, err error) error {
	return newError(KindStore, op, err)
}

// NewStoreErrorWithCode is NewStoreError carrying the store's error code.
func NewStoreErrorWithCode(op, code string, err error) error {
	return &Error{Kind: KindStore, Op: op, Code: code, Err: err}
}

// NewDecodeError reports a result that does not fit the requested shape.
func NewDecodeError(op string, err error) error {
	return newError(KindDecode, op, err)
}

// NewValidationError reports an entity constraint violated before a write.
func NewValidationError(op string, err error) error {
	return newError(KindValidation, op, err)
}

func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
func IsConnection(err error) bool    { return errors.Is(err, ErrConnection) }
func IsMigration(err error) bool     { return errors.Is(err, ErrMigration) }
func IsStore(err error) bool         { return errors.Is(err, ErrStore) }
func IsDecode(err error) bool        { return errors.Is(err, ErrDecode) }
func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }

// IsFatal reports whether err must abort startup.
func IsFatal(err error) bool {
	return IsConfiguration(err) || IsMigration(err) ||
		errors.Is(err, ErrAlreadyInitialized) || errors.Is(err, ErrNotInitialized)
}
