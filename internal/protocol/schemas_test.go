package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	callSchema := compile("call.schema.json")
	ackSchema := compile("ack.schema.json")
	eventSchema := compile("event.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"bot1",
	  "max_queue":256,
	  "auth":{"token":"s3cret"}
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"7d0f3a52-9f6e-4a7d-8a34-1c2b44910b90",
	  "tick_rate_hz":60,
	  "server_tick":1024,
	  "actions":[
	    {"name":"walk_to","async":true,"cancel":"cancel_walk"},
	    {"name":"start_mining","async":true,"cancel":"cancel_mining"},
	    {"name":"stop_walking","async":false}
	  ]
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var call any
	_ = json.Unmarshal([]byte(`{
	  "type":"CALL",
	  "protocol_version":"1.0",
	  "id":"c41",
	  "agent_id":7,
	  "action":"walk_to",
	  "params":{"x":104.5,"y":33.0,"arrival_radius":1.5}
	}`), &call)
	validate(callSchema, call)

	var ackOK any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACK",
	  "protocol_version":"1.0",
	  "ack_for":"c41",
	  "accepted":true,
	  "action_id":913,
	  "tick":1025,
	  "eta_tick":1301
	}`), &ackOK)
	validate(ackSchema, ackOK)

	var ackRejected any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACK",
	  "protocol_version":"1.0",
	  "ack_for":"c42",
	  "accepted":false,
	  "code":"E_UNKNOWN_AGENT",
	  "message":"unknown agent",
	  "tick":1025
	}`), &ackRejected)
	validate(ackSchema, ackRejected)

	var event any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENT",
	  "protocol_version":"1.0",
	  "tick":1301,
	  "events":[
	    {"t":1301,"type":"ACTION_DONE","category":"walking","kind":"walk_to",
	     "action_id":913,"agent_id":7,"t_issued":1025,"ok":true,"goal":[104.5,33.0]},
	    {"t":1301,"type":"ACTION_FAIL","category":"mining","kind":"start_mining",
	     "action_id":914,"agent_id":7,"t_issued":1030,"ok":false,
	     "code":"E_ORPHANED","message":"agent entity destroyed"}
	  ]
	}`), &event)
	validate(eventSchema, event)
}
