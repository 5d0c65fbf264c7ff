package broker

// Using NATS is simpler than RabbitMQ for the projects requirements.
var (
	StreamName        = "MESSAGES"
	SubjectGlobalRoom = StreamName + "." + "room.global"

	// RedisChannel carries the same payloads when Redis Pub/Sub is the bus.
	RedisChannel = "paychat:messages"
)
