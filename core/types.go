package core

// Service identifies one of the three backend roles the client talks to.
// Each is addressed via a base URL resolved by the endpoints package.
type Service string

const (
	ServiceChat Service = "chat"
	ServiceTTS  Service = "tts"
	ServiceSTT  Service = "stt"
)

// Services lists every logical service in a stable order.
var Services = []Service{ServiceChat, ServiceTTS, ServiceSTT}

// Role is a chat message author role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is a single turn in the wire format the chat service expects.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
