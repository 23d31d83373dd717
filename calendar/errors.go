package calendar

import "errors"

// ErrorKind classifies domain failures so callers can decide how to react
// without matching on individual errors.
type ErrorKind int

const (
	// KindValidation marks malformed input (coordinates, date ranges).
	KindValidation ErrorKind = iota + 1
	// KindNotFound marks lookups of unknown calendars or addresses.
	KindNotFound
	// KindInvariant marks business rule violations. They are never retried.
	KindInvariant
)

// Error is a typed domain error. All failures raised by the aggregate are
// instances of this type; infrastructure failures are plain wrapped errors.
type Error struct {
	Kind ErrorKind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var (
	ErrInvalidDateRange = &Error{KindValidation, "calendar.invalid_date_range", "end date must be after start date"}
	ErrInvalidLatitude  = &Error{KindValidation, "calendar.invalid_latitude", "latitude must be between -90 and 90 degrees"}
	ErrInvalidLongitude = &Error{KindValidation, "calendar.invalid_longitude", "longitude must be between -180 and 180 degrees"}
	ErrEmptyAddress     = &Error{KindValidation, "calendar.empty_address", "address text is required"}

	ErrCalendarNotFound = &Error{KindNotFound, "calendar.not_found", "delivery calendar not found"}
	ErrAddressNotFound  = &Error{KindNotFound, "calendar.address_not_found", "no address registered for the requested date"}

	ErrDateOutOfRange     = &Error{KindInvariant, "calendar.date_out_of_range", "date is outside the calendar range"}
	ErrDuplicateDate      = &Error{KindInvariant, "calendar.duplicate_date", "an address is already registered for that date"}
	ErrNoticeWindow       = &Error{KindInvariant, "calendar.notice_window", "changes require at least 2 days of notice"}
	ErrAlreadyDeactivated = &Error{KindInvariant, "calendar.already_deactivated", "the calendar is already deactivated"}
)

// IsValidation reports whether err is a domain validation failure.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsNotFound reports whether err is a domain not-found failure.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsInvariant reports whether err is a business rule violation.
func IsInvariant(err error) bool { return isKind(err, KindInvariant) }

func isKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
