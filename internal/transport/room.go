package transport

// RoomID builds the conversation channel identifier for two participants.
// The two identities are sorted before joining, so either side computes the
// same room name without server normalization.
func RoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
