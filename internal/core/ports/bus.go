package ports

// Handler consumes one decoded bus message. The payload is always
// non-nil; undecodable or empty payloads arrive as an empty map.
type Handler func(topic string, msg map[string]interface{})

// Publisher is the outbound half of the bus client. Payloads must be
// flat, JSON-serializable structures.
type Publisher interface {
	Publish(topic string, payload map[string]interface{}) error
	// PublishRetained publishes with the broker retain flag so
	// late-joining subscribers receive the last value immediately.
	PublishRetained(topic string, payload map[string]interface{}) error
}

// Subscriber registers exactly one handler per literal pattern string;
// registering the same pattern again replaces the previous handler.
type Subscriber interface {
	Subscribe(pattern string, h Handler) error
}
