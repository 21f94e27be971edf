package message

import "encoding/json"

// Unknown preserves any content whose msg_type this module doesn't
// recognize, guaranteeing forward compatibility with future protocol
// extensions (spec.md §3, §9 "dynamic content decoding").
type Unknown struct {
	MsgType string
	Raw     json.RawMessage
}

func (u Unknown) MessageType() string { return u.MsgType }

// MarshalJSON emits the preserved raw content unchanged (an empty object
// when Raw is empty), so an Unknown round-trips through the wire codec.
func (u Unknown) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("{}"), nil
	}
	return u.Raw, nil
}

// registry maps a msg_type to a constructor for its zero-value Content,
// used by the wire codec to route decoding purely on msg_type.
var registry = map[string]func() Content{
	"execute_request":     func() Content { return &ExecuteRequest{} },
	"execute_reply":        func() Content { return &ExecuteReply{} },
	"kernel_info_request":  func() Content { return &KernelInfoRequest{} },
	"kernel_info_reply":    func() Content { return &KernelInfoReply{} },
	"complete_request":     func() Content { return &CompleteRequest{} },
	"complete_reply":       func() Content { return &CompleteReply{} },
	"inspect_request":      func() Content { return &InspectRequest{} },
	"inspect_reply":        func() Content { return &InspectReply{} },
	"is_complete_request":  func() Content { return &IsCompleteRequest{} },
	"is_complete_reply":    func() Content { return &IsCompleteReply{} },
	"history_request":      func() Content { return &HistoryRequest{} },
	"history_reply":        func() Content { return &HistoryReply{} },
	"comm_info_request":    func() Content { return &CommInfoRequest{} },
	"comm_info_reply":      func() Content { return &CommInfoReply{} },
	"comm_open":            func() Content { return &CommOpen{} },
	"comm_msg":             func() Content { return &CommMsg{} },
	"comm_close":           func() Content { return &CommClose{} },
	"shutdown_request":     func() Content { return &ShutdownRequest{} },
	"shutdown_reply":       func() Content { return &ShutdownReply{} },
	"interrupt_request":    func() Content { return &InterruptRequest{} },
	"interrupt_reply":      func() Content { return &InterruptReply{} },
	"status":               func() Content { return &StatusMsg{} },
	"stream":               func() Content { return &StreamMsg{} },
	"execute_input":        func() Content { return &ExecuteInputMsg{} },
	"execute_result":       func() Content { return &ExecuteResultMsg{} },
	"display_data":         func() Content { return &DisplayDataMsg{} },
	"update_display_data":  func() Content { return &UpdateDisplayDataMsg{} },
	"clear_output":         func() Content { return &ClearOutputMsg{} },
	"error":                func() Content { return &ErrorMsg{} },
	"input_request":        func() Content { return &InputRequest{} },
	"input_reply":          func() Content { return &InputReply{} },
}

// DecodeContent unmarshals raw into the registered Content variant for
// msgType, or into an Unknown catch-all if msgType is unrecognized
// (spec.md §4.B, §9).
func DecodeContent(msgType string, raw json.RawMessage) (Content, error) {
	ctor, ok := registry[msgType]
	if !ok {
		return Unknown{MsgType: msgType, Raw: raw}, nil
	}
	content := ctor()
	if len(raw) == 0 {
		return content, nil
	}
	if err := json.Unmarshal(raw, content); err != nil {
		return nil, err
	}
	// Dereference the pointer so callers get value types consistently for
	// the registered variants (Unknown is already a value type).
	return derefContent(content), nil
}

func derefContent(c Content) Content {
	switch v := c.(type) {
	case *ExecuteRequest:
		return *v
	case *ExecuteReply:
		return *v
	case *KernelInfoRequest:
		return *v
	case *KernelInfoReply:
		return *v
	case *CompleteRequest:
		return *v
	case *CompleteReply:
		return *v
	case *InspectRequest:
		return *v
	case *InspectReply:
		return *v
	case *IsCompleteRequest:
		return *v
	case *IsCompleteReply:
		return *v
	case *HistoryRequest:
		return *v
	case *HistoryReply:
		return *v
	case *CommInfoRequest:
		return *v
	case *CommInfoReply:
		return *v
	case *CommOpen:
		return *v
	case *CommMsg:
		return *v
	case *CommClose:
		return *v
	case *ShutdownRequest:
		return *v
	case *ShutdownReply:
		return *v
	case *InterruptRequest:
		return *v
	case *InterruptReply:
		return *v
	case *StatusMsg:
		return *v
	case *StreamMsg:
		return *v
	case *ExecuteInputMsg:
		return *v
	case *ExecuteResultMsg:
		return *v
	case *DisplayDataMsg:
		return *v
	case *UpdateDisplayDataMsg:
		return *v
	case *ClearOutputMsg:
		return *v
	case *ErrorMsg:
		return *v
	case *InputRequest:
		return *v
	case *InputReply:
		return *v
	default:
		return c
	}
}
