package proxy

// WorkflowState is where an order stands in register → create → capture. It is
// derived from the stores on every read and never persisted. There is no
// separate verified state: verification leaves the ledger row completed, the
// same as capture, so a verified order reads as captured.
type WorkflowState string

const (
	StateNone         WorkflowState = "none"
	StateRegistered   WorkflowState = "registered"
	StateOrderCreated WorkflowState = "order_created"
	StateCaptured     WorkflowState = "captured"
)

// DeriveState maps record presence to a workflow state. A ledger row wins over
// order context since context is only staging data.
func DeriveState(hasContext bool, tx *Transaction) WorkflowState {
	switch {
	case tx != nil && tx.Status == TxCompleted:
		return StateCaptured
	case tx != nil:
		return StateOrderCreated
	case hasContext:
		return StateRegistered
	default:
		return StateNone
	}
}
