package remoteconfig

import "errors"

var (
	// ErrTransportFailed wraps any error returned by the transport.
	ErrTransportFailed = errors.New("transport failed")
	// ErrDecodeFailed means a payload was not a well-formed JSON object.
	ErrDecodeFailed = errors.New("decode failed")
	// ErrLocalReadFailed means a cached copy was required but none was usable.
	ErrLocalReadFailed = errors.New("local read failed")
	// ErrPersistFailed means the write-through to the cache failed. It is
	// only ever reported in Result.PersistErr; the fetch itself succeeds.
	ErrPersistFailed = errors.New("persist failed")
)
