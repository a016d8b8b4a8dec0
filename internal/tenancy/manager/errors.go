package manager

import "errors"

// ErrClosed is returned by Engine after Close.
var ErrClosed = errors.New("context manager closed")
