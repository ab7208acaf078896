package registry

import "errors"

// ErrNoProvider is returned by Resolve when a URI's scheme has no
// registered provider. It is its own sentinel (kept distinct from an
// opaque wrapped provider error) per the resolved Open Question on
// NoProvider discrimination.
var ErrNoProvider = errors.New("registry: no provider registered for scheme")

// ErrAlreadyRegistered is returned by Register/WithProvider when a
// scheme conflict would silently shadow an existing provider; unlike
// the teacher's Mount (which freely overwrote the prior leaf), the
// registry requires callers to Dispose the old Registration first.
var ErrAlreadyRegistered = errors.New("registry: scheme already registered")
