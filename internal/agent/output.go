package agent

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// streamEvent mirrors the subset of the Claude Code stream-json schema
// this accounting step reads: assistant messages carrying usage, and
// result lines carrying the final text.
type streamEvent struct {
	Type    string          `json:"type"`
	Message *messageContent `json:"message,omitempty"`
	Result  string          `json:"result,omitempty"`
}

type messageContent struct {
	Usage *usageBlock `json:"usage,omitempty"`
}

type usageBlock struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`
}

type tokenAccumulator struct {
	input  int
	output int
}

// drainStdout reads stdout line by line. assembled collects the
// human-readable text (result fields, when any JSON framing was seen);
// raw collects every line verbatim as a fallback when the child never
// emits JSON framing at all. tokens is updated from the most recent
// assistant usage record.
func drainStdout(r io.Reader, assembled, raw *bytes.Buffer, tokens *tokenAccumulator, clock *activityClock) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		clock.touch()
		line := scanner.Text()
		raw.WriteString(line)
		raw.WriteByte('\n')

		var event streamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		switch event.Type {
		case "assistant":
			if event.Message != nil && event.Message.Usage != nil {
				u := event.Message.Usage
				tokens.input = u.InputTokens + u.CacheCreationTokens + u.CacheReadTokens
				tokens.output = u.OutputTokens
			}
		case "result":
			assembled.WriteString(event.Result)
		}
	}
}
