package dto

// PubSubPushRequest is the body Pub/Sub posts to /dlq when a submission or
// certificate event exhausts its delivery attempts on the "-dlq" subscription.
type PubSubPushRequest struct {
	Message      PubSubMessage `json:"message"`
	Subscription string        `json:"subscription"`
}

// PubSubMessage carries the dead-lettered event. Data is base64 of the
// original JSON event; Attributes keep the publisher's metadata.
type PubSubMessage struct {
	Data       string            `json:"data"`
	MessageID  string            `json:"messageId"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
