package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ClientName      string     `json:"client_name"`
	MaxQueue        int        `json:"max_queue,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	TickRateHz      int             `json:"tick_rate_hz"`
	ServerTick      uint64          `json:"server_tick"`
	Actions         []ActionRef     `json:"actions"`
}

// ActionRef describes one invocable operation: whether it completes in the
// call itself or later via an EVENT, and the operation that cancels it.
type ActionRef struct {
	Name   string `json:"name"`
	Async  bool   `json:"async"`
	Cancel string `json:"cancel,omitempty"`
}

// CALL (client -> server): one action invocation.
type CallMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ID              string         `json:"id"`
	AgentID         uint64         `json:"agent_id,omitempty"`
	Action          string         `json:"action"`
	Params          map[string]any `json:"params,omitempty"`
}

// ACK (server -> client): the synchronous reply to a CALL. For async actions
// Result carries at most the immediately-known fields (e.g. count_queued);
// the terminal outcome arrives later as an EVENT correlated by ActionID.
type AckMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	AckFor          string         `json:"ack_for"`
	Accepted        bool           `json:"accepted"`
	Code            string         `json:"code,omitempty"`
	Message         string         `json:"message,omitempty"`
	ActionID        uint64         `json:"action_id,omitempty"`
	Tick            uint64         `json:"tick"`
	ETATick         uint64         `json:"eta_tick,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
}

// EVENT (server -> client): a batch of completion/cancellation events
// flushed at a tick boundary.
type EventMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Events          []Event `json:"events"`
}
