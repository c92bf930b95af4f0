package protocol

type Event map[string]interface{}

// Event types.
const (
	EventDone     = "ACTION_DONE"
	EventFail     = "ACTION_FAIL"
	EventCanceled = "ACTION_CANCELED"
)

// Action categories carried in the "category" field of completion events.
const (
	CategoryWalking   = "walking"
	CategoryMining    = "mining"
	CategoryCrafting  = "crafting"
	CategoryPlacement = "placement"
	CategoryEntityOps = "entity_ops"
)
