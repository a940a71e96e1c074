package store

// Contact represents a peer the local user explicitly added to their
// conversation list. The store is the source of truth for contacts; the
// server directory never writes here.
type Contact struct {
	OwnerID   string
	PeerID    string
	Name      string
	CompanyID string
	AddedAt   int64
}
