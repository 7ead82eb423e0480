package ddns

import "errors"

// Errors returned by RunDDNS wrap one of these so callers can tell which stage failed.
var (
	ErrConfig  = errors.New("configuration error")
	ErrResolve = errors.New("external IP resolution failed")
	ErrFetch   = errors.New("fetching DNS records failed")
	ErrUpdate  = errors.New("updating DNS record failed")
	ErrCache   = errors.New("IP cache I/O failed")
)
