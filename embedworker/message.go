package embedworker

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the six message kinds the embedding worker accepts.
type Kind string

const (
	KindChunkText    Kind = "chunk_text"
	KindProcessChunk Kind = "process_chunk"
	KindSend         Kind = "send"
	KindGetChunkID   Kind = "get_chunk_id"
	KindReset        Kind = "reset"
	KindStop         Kind = "stop"
)

// ChunkTextPayload is the [id, text] tuple carried by a chunk_text message.
// Ack, when set, receives the outcome of the append so a caller that needs
// to await the embedding branch (the ingest handler does) can; it plays no
// part in the wire shape below and is nil for messages decoded off the wire.
type ChunkTextPayload struct {
	ID   uint32
	Text string
	Ack  chan<- error
}

// SendPayload is the [k, query_vec] tuple carried by a send message.
type SendPayload struct {
	K         uint32
	QueryVec  []float32
}

// GetChunkIDPayload is the [text, k] tuple carried by a get_chunk_id message.
type GetChunkIDPayload struct {
	Text string
	K    uint32
}

// Message is one envelope on the embedding worker's inbound channel. Only
// the field matching Kind is populated. JSON marshaling follows the
// worker's documented wire shape (single-key object keyed by kind, or a
// bare kind string for the payload-less reset/stop messages) — the same
// shape the original prototype's own wire tests assert.
type Message struct {
	Kind         Kind
	ChunkText    ChunkTextPayload
	ProcessChunk string
	Send         SendPayload
	GetChunkID   GetChunkIDPayload
}

// MarshalJSON renders the message per its documented wire shape.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindChunkText:
		return json.Marshal(map[string]any{
			"chunk_text": []any{m.ChunkText.ID, m.ChunkText.Text},
		})
	case KindProcessChunk:
		return json.Marshal(map[string]any{"process_chunk": m.ProcessChunk})
	case KindSend:
		return json.Marshal(map[string]any{
			"send": []any{m.Send.K, m.Send.QueryVec},
		})
	case KindGetChunkID:
		return json.Marshal(map[string]any{
			"get_chunk_id": []any{m.GetChunkID.Text, m.GetChunkID.K},
		})
	case KindReset:
		return json.Marshal("reset")
	case KindStop:
		return json.Marshal("stop")
	default:
		return nil, fmt.Errorf("embedworker: unknown message kind %q", m.Kind)
	}
}

// UnmarshalJSON parses a message from its wire shape.
func (m *Message) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch bare {
		case "reset":
			*m = Message{Kind: KindReset}
			return nil
		case "stop":
			*m = Message{Kind: KindStop}
			return nil
		default:
			return fmt.Errorf("embedworker: unknown bare message %q", bare)
		}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("embedworker: decoding message: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("embedworker: message envelope must have exactly one key, got %d", len(obj))
	}

	for key, raw := range obj {
		switch Kind(key) {
		case KindChunkText:
			var tuple [2]json.RawMessage
			if err := json.Unmarshal(raw, &tuple); err != nil {
				return err
			}
			var id uint32
			var text string
			if err := json.Unmarshal(tuple[0], &id); err != nil {
				return err
			}
			if err := json.Unmarshal(tuple[1], &text); err != nil {
				return err
			}
			*m = Message{Kind: KindChunkText, ChunkText: ChunkTextPayload{ID: id, Text: text}}
			return nil
		case KindProcessChunk:
			var text string
			if err := json.Unmarshal(raw, &text); err != nil {
				return err
			}
			*m = Message{Kind: KindProcessChunk, ProcessChunk: text}
			return nil
		case KindSend:
			var tuple [2]json.RawMessage
			if err := json.Unmarshal(raw, &tuple); err != nil {
				return err
			}
			var k uint32
			var vec []float32
			if err := json.Unmarshal(tuple[0], &k); err != nil {
				return err
			}
			if err := json.Unmarshal(tuple[1], &vec); err != nil {
				return err
			}
			*m = Message{Kind: KindSend, Send: SendPayload{K: k, QueryVec: vec}}
			return nil
		case KindGetChunkID:
			var tuple [2]json.RawMessage
			if err := json.Unmarshal(raw, &tuple); err != nil {
				return err
			}
			var text string
			var k uint32
			if err := json.Unmarshal(tuple[0], &text); err != nil {
				return err
			}
			if err := json.Unmarshal(tuple[1], &k); err != nil {
				return err
			}
			*m = Message{Kind: KindGetChunkID, GetChunkID: GetChunkIDPayload{Text: text, K: k}}
			return nil
		default:
			return fmt.Errorf("embedworker: unknown message kind %q", key)
		}
	}
	return nil
}
