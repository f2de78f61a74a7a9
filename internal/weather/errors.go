package weather

import "errors"

var (
	// ErrNotFound is returned when no row exists for the requested key.
	ErrNotFound = errors.New("not found")

	// ErrSourceUnavailable covers weather-source timeouts, HTTP errors and
	// transport failures.
	ErrSourceUnavailable = errors.New("weather source unavailable")

	// ErrInferenceUnavailable covers inference timeouts, connection errors
	// and malformed inference output.
	ErrInferenceUnavailable = errors.New("inference service unavailable")

	// ErrInsufficientData signals fewer stored records than the analysis
	// window requires. It is a skip, not a failure.
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// ErrCoordinateParse signals upstream coordinates that do not parse
	// into a stable numeric form. It aborts auto-registration only.
	ErrCoordinateParse = errors.New("unparsable coordinates")
)
