package chathub

import "campuscare/backend/internal/models"

// Client is a live connection the hub pushes room events to.
type Client interface {
	GetUserID() string
	// Actor is the authenticated user behind the connection. It decides which rooms the client may join.
	Actor() models.Actor

	// GetSendChannel returns the channel the hub writes events for this client to.
	// Only the hub sends on it, and the hub closes it through Close.
	GetSendChannel() chan<- models.Event

	// Run starts the read and write pumps.
	Run()
	// Close is called by the hub exactly once when it drops the client.
	Close()
}
