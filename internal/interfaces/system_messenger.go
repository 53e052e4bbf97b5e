package interfaces

// SystemMessenger hands a system message to the chat transport for a given
// escrow channel. Delivery and persistence of chat traffic are handled by the
// messaging collaborator; this service only decides when a message is due.
type SystemMessenger interface {
	SendSystemMessage(channelID, text string) error
}
