package sweepcache

import "errors"

// ErrClosed is returned by Set after Close. Reads on a closed cache simply
// miss; there is nothing useful a read path could do with an error.
var ErrClosed = errors.New("sweepcache: cache is closed")
