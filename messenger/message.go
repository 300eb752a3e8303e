package messenger

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("messenger: unknown command")
	ErrClosed         = errors.New("messenger: closed")
	ErrPanelOpen      = errors.New("messenger: a panel is already attached")
)

// Command tags a Message. The vocabulary is closed; anything else is rejected
// by Decode and never reaches the controller.
type Command string

// Panel -> controller.
const (
	CmdStartSystemRecording Command = "startSystemRecording"
	CmdStopSystemRecording  Command = "stopSystemRecording"
	CmdCopyText             Command = "copyText"
	CmdSendToChatGPT        Command = "sendToChatGPT"
	CmdOpenSettings         Command = "openSettings"
)

// Controller -> panel.
const (
	CmdRecordingStarted Command = "recordingStarted"
	CmdRecordingStopped Command = "recordingStopped"
	CmdResults          Command = "results"
	CmdChatGPTResponse  Command = "chatGPTResponse"
	CmdError            Command = "error"
)

// Inbound reports whether c travels from the panel to the controller.
func (c Command) Inbound() bool {
	switch c {
	case CmdStartSystemRecording, CmdStopSystemRecording, CmdCopyText, CmdSendToChatGPT, CmdOpenSettings:
		return true
	}
	return false
}

func (c Command) valid() bool {
	switch c {
	case CmdRecordingStarted, CmdRecordingStopped, CmdResults, CmdChatGPTResponse, CmdError:
		return true
	}
	return c.Inbound()
}

type TextPayload struct {
	Text string `json:"text"`
}

type ResultsPayload struct {
	Transcription string `json:"transcription"`
	// Feedback is always sent, null when there is none.
	Feedback *string `json:"feedback"`
}

type ChatResponsePayload struct {
	Response string `json:"response"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Message is the envelope exchanged across the panel boundary. Payload is nil
// or one of the *Payload types above, matching Command.
type Message struct {
	Command Command
	Payload any
}

func Simple(cmd Command) Message { return Message{Command: cmd} }

func NewCopyText(text string) Message {
	return Message{Command: CmdCopyText, Payload: TextPayload{Text: text}}
}

func NewSendToChatGPT(text string) Message {
	return Message{Command: CmdSendToChatGPT, Payload: TextPayload{Text: text}}
}

func NewResults(transcription string, feedback *string) Message {
	return Message{Command: CmdResults, Payload: ResultsPayload{Transcription: transcription, Feedback: feedback}}
}

func NewChatGPTResponse(response string) Message {
	return Message{Command: CmdChatGPTResponse, Payload: ChatResponsePayload{Response: response}}
}

func NewError(msg string) Message {
	return Message{Command: CmdError, Payload: ErrorPayload{Message: msg}}
}

// Text returns the text of a copyText or sendToChatGPT message.
func (m Message) Text() string {
	if p, ok := m.Payload.(TextPayload); ok {
		return p.Text
	}
	return ""
}

func (m Message) String() string {
	switch p := m.Payload.(type) {
	case TextPayload:
		return fmt.Sprintf("%s{%d chars}", m.Command, len(p.Text))
	case ResultsPayload:
		return fmt.Sprintf("%s{%d chars}", m.Command, len(p.Transcription))
	case ChatResponsePayload:
		return fmt.Sprintf("%s{%d chars}", m.Command, len(p.Response))
	case ErrorPayload:
		return fmt.Sprintf("%s{%s}", m.Command, p.Message)
	}
	return string(m.Command)
}

// Encode renders m as a flat JSON object: {"command": "...", <payload fields>}.
func Encode(m Message) ([]byte, error) {
	if !m.Command.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, m.Command)
	}
	fields := map[string]any{}
	if m.Payload != nil {
		raw, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Command, err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Command, err)
		}
	}
	fields["command"] = m.Command
	return json.Marshal(fields)
}

// Decode parses a flat JSON message. Unknown command tags return an error
// wrapping ErrUnknownCommand; callers drop those and keep reading.
func Decode(data []byte) (Message, error) {
	var env struct {
		Command Command `json:"command"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}

	m := Message{Command: env.Command}
	var err error
	switch env.Command {
	case CmdStartSystemRecording, CmdStopSystemRecording, CmdOpenSettings,
		CmdRecordingStarted, CmdRecordingStopped:
	case CmdCopyText, CmdSendToChatGPT:
		var p TextPayload
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case CmdResults:
		var p ResultsPayload
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case CmdChatGPTResponse:
		var p ChatResponsePayload
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case CmdError:
		var p ErrorPayload
		err = json.Unmarshal(data, &p)
		m.Payload = p
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Command)
	}
	if err != nil {
		return Message{}, fmt.Errorf("decode %s: %w", env.Command, err)
	}
	return m, nil
}
