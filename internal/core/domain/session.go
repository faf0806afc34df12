package domain

// ViewerID is the signaling-assigned identifier of a remote viewer. It is
// unique while the viewer is connected; the signaling layer may reuse it
// after a disconnect, so a stale session must be closed before a new one is
// created under the same key.
type ViewerID string

// SessionState tracks the negotiation progress of one viewer session.
type SessionState string

const (
	SessionNegotiating SessionState = "negotiating"
	SessionConnected   SessionState = "connected"
	SessionLive        SessionState = "live"
	SessionClosed      SessionState = "closed"
)
