package central

import "errors"

// ErrAPINotFound is returned by Execute when nothing is registered at the
// command's extra API path.
var ErrAPINotFound = errors.New("no extra api registered at path")

// ErrNotExtraAPI is returned when a registered reference resolves to
// something other than an ExtraAPI.
var ErrNotExtraAPI = errors.New("reference does not resolve to an extra api")

// ErrInvalidAPI is returned by PutExtraAPI for an API without an id.
var ErrInvalidAPI = errors.New("extra api has no id")
