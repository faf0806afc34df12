package domain

import "errors"

var (
	ErrViewerNotFound  = errors.New("viewer session not found")
	ErrSourceStopped   = errors.New("capture source stopped")
	ErrAgentRunning    = errors.New("agent already running")
	ErrNoAuthToken     = errors.New("no auth token available")
	ErrConnectTimeout  = errors.New("signaling server did not acknowledge connection")
	ErrNotConnected    = errors.New("signaling client not connected")
	ErrInvalidMessage  = errors.New("invalid signaling message")
	ErrMonitorNotFound = errors.New("capture monitor not found")
)
