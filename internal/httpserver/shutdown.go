package httpserver

import "time"

var (
	// ShutdownTimeout controls how long to wait for graceful shutdowns.
	ShutdownTimeout = 15 * time.Second
	// UploadTimeout bounds how long a single request body may take to arrive.
	UploadTimeout = 10 * time.Minute
)
