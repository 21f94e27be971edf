package message

// ShutdownRequest asks the kernel to terminate, optionally for a restart
// (sent on the control channel, spec.md §4.I).
type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

func (ShutdownRequest) MessageType() string { return "shutdown_request" }

// ShutdownReply confirms a shutdown is underway.
type ShutdownReply struct {
	Status  string `json:"status"`
	Restart bool   `json:"restart"`
	ErrorInfo
}

func (ShutdownReply) MessageType() string { return "shutdown_reply" }

// InterruptRequest asks the kernel to interrupt the currently running
// cell (sent on the control channel when the kernelspec's interrupt mode
// is "message", spec.md §4.I).
type InterruptRequest struct{}

func (InterruptRequest) MessageType() string { return "interrupt_request" }

// InterruptReply confirms an interrupt was handled.
type InterruptReply struct {
	Status string `json:"status"`
	ErrorInfo
}

func (InterruptReply) MessageType() string { return "interrupt_reply" }
