package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseServerMessage_Variants(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  MessageType
	}{
		{
			name:  "state sync",
			frame: `{"type":"state_sync","data":{"game_state":{"game_id":"g1","down":1},"home_team":{"id":"h"},"away_team":{"id":"a"}}}`,
			want:  MsgStateSync,
		},
		{
			name:  "play completed with one field",
			frame: `{"type":"play_completed","data":{"down":2}}`,
			want:  MsgPlayCompleted,
		},
		{
			name:  "awaiting play call",
			frame: `{"type":"awaiting_play_call","data":{"down_state":{"down":3,"yards_to_go":4},"available_plays":[{"play_type":"run","run_types":["inside"]}]}}`,
			want:  MsgAwaitingPlayCall,
		},
		{
			name:  "game end",
			frame: `{"type":"game_end","data":{"home_score":21,"away_score":14,"winner_id":"h","is_tie":false}}`,
			want:  MsgGameEnd,
		},
		{
			name:  "server error",
			frame: `{"type":"error","data":{"message":"game not found","code":"not_found"}}`,
			want:  MsgError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := ParseServerMessage([]byte(tc.frame))
			require.NoError(t, err)
			require.Equal(t, tc.want, msg.Type())
		})
	}
}

func TestParseServerMessage_PartialFieldsStayNil(t *testing.T) {
	msg, err := ParseServerMessage([]byte(`{"type":"play_completed","data":{"down":2}}`))
	require.NoError(t, err)

	pc, ok := msg.(PlayCompleted)
	require.True(t, ok)
	require.NotNil(t, pc.Down)
	require.Equal(t, 2, *pc.Down)
	require.Nil(t, pc.Quarter)
	require.Nil(t, pc.HomeScore)
	require.Nil(t, pc.OffenseIsHome)
}

func TestParseServerMessage_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{name: "empty", frame: "", wantErr: ErrMalformedFrame},
		{name: "not json", frame: "hello", wantErr: ErrMalformedFrame},
		{name: "no type", frame: `{"data":{}}`, wantErr: ErrMalformedFrame},
		{name: "unknown type", frame: `{"type":"teleport","data":{}}`, wantErr: ErrUnknownMessage},
		{name: "missing data", frame: `{"type":"scoring"}`, wantErr: ErrMissingPayload},
		{name: "null data", frame: `{"type":"scoring","data":null}`, wantErr: ErrMissingPayload},
		{name: "state sync without state", frame: `{"type":"state_sync","data":{"home_team":{}}}`, wantErr: ErrMissingPayload},
		{name: "wrong field type", frame: `{"type":"quarter_end","data":{"quarter":"two"}}`, wantErr: ErrMalformedFrame},
		{name: "error without message", frame: `{"type":"error","data":{"code":"x"}}`, wantErr: ErrMissingPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := ParseServerMessage([]byte(tc.frame))
			require.Nil(t, msg)
			require.True(t, errors.Is(err, tc.wantErr), "want %v, got %v", tc.wantErr, err)
		})
	}
}

func TestMarshal_ClientMessagesRoundTripThroughServerParser(t *testing.T) {
	msgs := []ClientMessage{
		Pause{},
		Resume{},
		RequestSync{},
		SetPacing{Pacing: "fast"},
		PlayCall{PlayType: "pass", PassType: "deep"},
	}
	for _, m := range msgs {
		b, err := Marshal(m)
		require.NoError(t, err)

		got, err := ParseClientMessage(b)
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}

func TestTickIDs(t *testing.T) {
	tick := &Tick{
		Quarterback: &Player{ID: "qb1"},
		Blockers:    []Player{{ID: "b1"}, {ID: "b2"}},
	}
	require.Equal(t, "qb1", tick.QuarterbackID())
	require.Equal(t, []string{"b1", "b2"}, tick.BlockerIDs())
	require.Empty(t, tick.RusherIDs())

	var nilTick *Tick
	require.Equal(t, "", nilTick.QuarterbackID())
	require.Equal(t, DefaultBallID, (&Ball{}).Key())
}
