package message

// InputRequest asks the front-end to prompt the user for input on behalf
// of a running cell (spec.md §4.C "Stdin"); grounded on
// kernel/messages.go's Message.PromptInput.
type InputRequest struct {
	Prompt   string `json:"prompt"`
	Password bool   `json:"password"`
}

func (InputRequest) MessageType() string { return "input_request" }

// InputReply carries the user-entered value back to the kernel.
type InputReply struct {
	Value string `json:"value"`
}

func (InputReply) MessageType() string { return "input_reply" }
