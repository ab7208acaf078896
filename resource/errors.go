package resource

import "errors"

// ErrOutOfSync is returned by SaveContents when the resource's on-disk
// version has moved since the caller last observed it via Init or
// ReadContents, generalizing the teacher's FILE_MODIFIED_SINCE wire
// condition into a single comparable sentinel.
var ErrOutOfSync = errors.New("resource: out of sync with backing store")
