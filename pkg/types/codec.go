package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrMissingPayload = errors.New("missing payload")
)

// Envelope is the outer shape of every frame on the channel.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("encode: nil message")
	}
	pb, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return json.Marshal(Envelope{Type: m.Type(), Data: pb})
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return env, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if isEmptyPayload(env.Data) {
		return out, fmt.Errorf("%w for %q", ErrMissingPayload, env.Type)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, env.Type, err)
	}
	return out, nil
}

// ParseServerMessage never panics and never returns a partially decoded
// message: either the frame is a complete, known variant or err is non-nil.
func ParseServerMessage(b []byte) (ServerMessage, error) {
	env, err := DecodeEnvelope(b)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case MsgStateSync:
		m, err := DecodePayload[StateSync](env)
		if err != nil {
			return nil, err
		}
		if m.GameState == nil {
			return nil, fmt.Errorf("%w: state_sync without game_state", ErrMissingPayload)
		}
		return m, nil
	case MsgPlayCompleted:
		return decodeServer[PlayCompleted](env)
	case MsgScoring:
		return decodeServer[Scoring](env)
	case MsgTurnover:
		return decodeServer[Turnover](env)
	case MsgQuarterEnd:
		return decodeServer[QuarterEnd](env)
	case MsgGameEnd:
		return decodeServer[GameEnd](env)
	case MsgAwaitingPlayCall:
		return decodeServer[AwaitingPlayCall](env)
	case MsgError:
		m, err := DecodePayload[ServerError](env)
		if err != nil {
			return nil, err
		}
		if m.Message == "" {
			return nil, fmt.Errorf("%w: error without message", ErrMissingPayload)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

// ParseClientMessage is the server-side counterpart, used by fakes and tools.
func ParseClientMessage(b []byte) (ClientMessage, error) {
	env, err := DecodeEnvelope(b)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case MsgPause:
		return Pause{}, nil
	case MsgResume:
		return Resume{}, nil
	case MsgRequestSync:
		return RequestSync{}, nil
	case MsgSetPacing:
		m, err := DecodePayload[SetPacing](env)
		if err != nil {
			return nil, err
		}
		return m, nil
	case MsgPlayCall:
		m, err := DecodePayload[PlayCall](env)
		if err != nil {
			return nil, err
		}
		if m.PlayType == "" {
			return nil, fmt.Errorf("%w: play_call without play_type", ErrMissingPayload)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

func decodeServer[T ServerMessage](env Envelope) (ServerMessage, error) {
	m, err := DecodePayload[T](env)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func isEmptyPayload(b json.RawMessage) bool {
	t := bytes.TrimSpace(b)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
