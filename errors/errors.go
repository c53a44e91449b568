package errors

import "fmt"

var (
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Wire protocol failures, all of them are fatal for the connection.
	ErrProtocolViolation = fmt.Errorf("protocol violation")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrDecode            = fmt.Errorf("frame decode error")

	ErrInvalidRegistration = fmt.Errorf("invalid registration")
	ErrNotRegistered       = fmt.Errorf("session is not registered")
	ErrFileNotFound        = fmt.Errorf("file not found")
	ErrInvalidFile         = fmt.Errorf("invalid file upload")
	ErrUnknownBackend      = fmt.Errorf("unknown snapshot backend")
)
