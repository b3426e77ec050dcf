package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// wireEvent is the JSON payload of one interactions stream frame.
type wireEvent struct {
	EventType   string `json:"event_type"`
	EventID     string `json:"event_id"`
	Interaction *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"interaction"`
	Delta *struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Content *struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"delta"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (w wireEvent) event() StreamEvent {
	ev := StreamEvent{Type: EventType(w.EventType), EventID: w.EventID}
	if w.Interaction != nil {
		ev.Handle = w.Interaction.ID
	}
	if w.Delta != nil {
		d := &Delta{Type: DeltaType(w.Delta.Type), Text: w.Delta.Text}
		if d.Text == "" && w.Delta.Content != nil {
			d.Text = w.Delta.Content.Text
		}
		ev.Delta = d
	}
	if w.Error != nil {
		ev.Message = w.Error.Message
	}
	return ev
}

// ReadEvents reads Server-Sent Events from body and delivers them, in order,
// on the returned channel. The channel is closed when the body is exhausted,
// a read error occurs, or ctx is cancelled; body is closed on return.
//
//   - "data:" lines carry the JSON payload; consecutive ones are joined
//     with newlines.
//   - Lines starting with ":" are comments.
//   - An empty line ends an event.
//   - Malformed JSON yields an event with Err set and reading continues.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		var dataBuf strings.Builder

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if !scanner.Scan() {
				if dataBuf.Len() > 0 {
					emit(ctx, ch, dataBuf.String())
				}
				return
			}

			line := scanner.Text()
			switch {
			case line == "":
				if dataBuf.Len() > 0 {
					emit(ctx, ch, dataBuf.String())
					dataBuf.Reset()
				}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "data:"):
				payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
				if dataBuf.Len() > 0 {
					dataBuf.WriteByte('\n')
				}
				dataBuf.WriteString(payload)
			default:
				// event:, id: and retry: fields are not used.
			}
		}
	}()
	return ch
}

func emit(ctx context.Context, ch chan<- StreamEvent, raw string) {
	var w wireEvent
	ev := StreamEvent{}
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		ev.Err = fmt.Errorf("sse: unmarshal event: %w", err)
	} else {
		ev = w.event()
	}
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
