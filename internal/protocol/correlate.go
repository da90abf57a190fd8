package protocol

import "github.com/parleychat/parley/internal/domain"

// NewMessageEvents builds the two delivery variants for one accepted
// message. The variants differ only in the presence of the correlation
// id: other clients have no use for it and it must not leak across
// identities.
func NewMessageEvents(msg domain.ChatMessage, clientMessageID string) (public, sender MessageNewEvent) {
	public = MessageNewEvent{Type: TypeMessageNew, V: Version, Message: msg}
	sender = public
	sender.ClientMessageID = clientMessageID
	return public, sender
}

// PickMessageEvent selects the variant a recipient receives: the sender
// variant iff the recipient's verified user id equals the sender's.
// Exact identity equality, not connection equality, so several
// connections sharing one identity all see the sender variant.
func PickMessageEvent(recipient, senderID domain.UserID, public, sender MessageNewEvent) MessageNewEvent {
	if recipient == senderID {
		return sender
	}
	return public
}
