// Package server formats and routes text messages from one peer to the rest.
package server

// FormatBroadcast renders the wire form of a relayed message: "<sender>: <text>".
func FormatBroadcast(sender PeerID, text string) string {
	return string(sender) + ": " + text
}

// Broadcast labels text with the sender's identity and fans it out to every
// other registered peer. It returns the number of recipients reached.
func (r *Registry) Broadcast(sender PeerID, text string) int {
	return r.BroadcastExcept(sender, FormatBroadcast(sender, text))
}
