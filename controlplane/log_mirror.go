package controlplane

import "voicebridge/core"

// AttachLogMirror returns a copy of base whose records are also mirrored to
// the control plane as log messages. Mirrored records go through the client's
// drop-oldest send queue, so logging never blocks on a slow connection.
func AttachLogMirror(client *Client, base *core.Logger) *core.Logger {
	return base.Tee(client.SendLog)
}
