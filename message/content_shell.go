package message

// ErrorInfo is the error sub-record carried inline on any reply whose
// status is "error" (spec.md §3). Embedded (not nested) so it flattens
// onto the wire the way the real protocol expects.
type ErrorInfo struct {
	EName     string   `json:"ename,omitempty"`
	EValue    string   `json:"evalue,omitempty"`
	Traceback []string `json:"traceback,omitempty"`
}

// MIMEBundle is a raw mime-type -> payload map, as carried by
// execute_result/display_data/update_display_data/inspect_reply before
// the media package's stronger typing is applied.
type MIMEBundle = map[string]interface{}

// ExecuteRequest asks the kernel to execute code (spec.md §3).
type ExecuteRequest struct {
	Code            string                 `json:"code"`
	Silent          bool                   `json:"silent"`
	StoreHistory    bool                   `json:"store_history"`
	UserExpressions map[string]string      `json:"user_expressions,omitempty"`
	AllowStdin      bool                   `json:"allow_stdin"`
	StopOnError     bool                   `json:"stop_on_error"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

func (ExecuteRequest) MessageType() string { return "execute_request" }

// ExecuteReply is the shell reply to ExecuteRequest.
type ExecuteReply struct {
	Status          string            `json:"status"`
	ExecutionCount  int               `json:"execution_count"`
	UserExpressions map[string]string `json:"user_expressions,omitempty"`
	Payload         []MIMEBundle      `json:"payload,omitempty"`
	ErrorInfo
}

func (ExecuteReply) MessageType() string { return "execute_reply" }

// KernelInfoRequest asks the kernel to describe itself.
type KernelInfoRequest struct{}

func (KernelInfoRequest) MessageType() string { return "kernel_info_request" }

// LanguageInfo describes the language a kernel executes (spec.md §4.C).
type LanguageInfo struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	MIMEType          string `json:"mimetype"`
	FileExtension     string `json:"file_extension"`
	PygmentsLexer     string `json:"pygments_lexer,omitempty"`
	CodeMirrorMode    string `json:"codemirror_mode,omitempty"`
	NBConvertExporter string `json:"nbconvert_exporter,omitempty"`
}

// HelpLink is a single entry of a kernel's help menu.
type HelpLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// KernelInfoReply describes the kernel implementation and language.
type KernelInfoReply struct {
	Status                string       `json:"status"`
	ProtocolVersion        string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	Banner                string       `json:"banner"`
	HelpLinks             []HelpLink   `json:"help_links,omitempty"`
	ErrorInfo
}

func (KernelInfoReply) MessageType() string { return "kernel_info_reply" }

// CompleteRequest asks for auto-complete matches at cursor_pos.
type CompleteRequest struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

func (CompleteRequest) MessageType() string { return "complete_request" }

// CompleteReply carries the auto-complete matches.
type CompleteReply struct {
	Status      string       `json:"status"`
	Matches     []string     `json:"matches"`
	CursorStart int          `json:"cursor_start"`
	CursorEnd   int          `json:"cursor_end"`
	Metadata    MIMEBundle   `json:"metadata,omitempty"`
	ErrorInfo
}

func (CompleteReply) MessageType() string { return "complete_reply" }

// InspectRequest asks for introspection (e.g. docstring) at cursor_pos.
type InspectRequest struct {
	Code        string `json:"code"`
	CursorPos   int    `json:"cursor_pos"`
	DetailLevel int    `json:"detail_level"`
}

func (InspectRequest) MessageType() string { return "inspect_request" }

// InspectReply carries introspection data.
type InspectReply struct {
	Status   string     `json:"status"`
	Found    bool       `json:"found"`
	Data     MIMEBundle `json:"data,omitempty"`
	Metadata MIMEBundle `json:"metadata,omitempty"`
	ErrorInfo
}

func (InspectReply) MessageType() string { return "inspect_reply" }

// IsCompleteRequest asks whether code is a complete statement.
type IsCompleteRequest struct {
	Code string `json:"code"`
}

func (IsCompleteRequest) MessageType() string { return "is_complete_request" }

// IsCompleteReply answers IsCompleteRequest: status one of "complete",
// "incomplete", "invalid", "unknown".
type IsCompleteReply struct {
	Status string `json:"status"`
	Indent string `json:"indent,omitempty"`
}

func (IsCompleteReply) MessageType() string { return "is_complete_reply" }

// HistoryRequest asks for past execution history.
type HistoryRequest struct {
	Output        bool   `json:"output"`
	Raw           bool   `json:"raw"`
	HistAccessType string `json:"hist_access_type"`
	Session       int    `json:"session,omitempty"`
	Start         int    `json:"start,omitempty"`
	Stop          int    `json:"stop,omitempty"`
	N             int    `json:"n,omitempty"`
	Pattern       string `json:"pattern,omitempty"`
	Unique        bool   `json:"unique,omitempty"`
}

func (HistoryRequest) MessageType() string { return "history_request" }

// HistoryReplyEntry is one (session, line, input[, output]) tuple.
type HistoryReplyEntry struct {
	Session int
	Line    int
	Input   string
	Output  string
}

// HistoryReply answers HistoryRequest.
type HistoryReply struct {
	Status  string              `json:"status"`
	History []HistoryReplyEntry `json:"history"`
	ErrorInfo
}

func (HistoryReply) MessageType() string { return "history_reply" }

// CommInfoRequest asks for all open comms, optionally filtered by target.
type CommInfoRequest struct {
	TargetName string `json:"target_name,omitempty"`
}

func (CommInfoRequest) MessageType() string { return "comm_info_request" }

// CommInfoEntry describes one open comm.
type CommInfoEntry struct {
	TargetName string `json:"target_name"`
}

// CommInfoReply answers CommInfoRequest.
type CommInfoReply struct {
	Status string                   `json:"status"`
	Comms  map[string]CommInfoEntry `json:"comms"`
	ErrorInfo
}

func (CommInfoReply) MessageType() string { return "comm_info_reply" }

// CommOpen opens a new comm channel between kernel and front-end.
type CommOpen struct {
	CommID     string                 `json:"comm_id"`
	TargetName string                 `json:"target_name"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

func (CommOpen) MessageType() string { return "comm_open" }

// CommMsg carries an application-defined payload over an open comm.
type CommMsg struct {
	CommID string                 `json:"comm_id"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

func (CommMsg) MessageType() string { return "comm_msg" }

// CommClose closes an open comm channel.
type CommClose struct {
	CommID string                 `json:"comm_id"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

func (CommClose) MessageType() string { return "comm_close" }
