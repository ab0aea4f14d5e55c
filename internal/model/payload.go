package model

// MessagePayload is a chat message ready to post. Body is the exact JSON sent.
type MessagePayload struct {
	Text string
	Body []byte
}
