package observation

import "errors"

var (
	// ErrInvalidCredentials is returned when a provider rejects the configured
	// access token. It signals an I/O failure: the request can not succeed
	// until configuration changes.
	ErrInvalidCredentials = errors.New("provider rejected access token")

	// ErrNoData is returned when a provider reports no observations for the
	// requested stations and time range. It signals a bad request value.
	ErrNoData = errors.New("no data found; try a different station or time range")
)
