package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/core/mock"
	"github.com/dkeye/Huddle/internal/domain"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type delivery struct {
	To      domain.ConnID
	Event   core.EventType
	Payload any
}

// recorder is an Outbound that keeps every delivery in order.
type recorder struct {
	mu   sync.Mutex
	sent []delivery
}

func (r *recorder) Send(to domain.ConnID, event core.EventType, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, delivery{To: to, Event: event, Payload: payload})
	return nil
}

// take returns and clears everything recorded so far.
func (r *recorder) take() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

func newTestRelay(t *testing.T, out core.Outbound) (*Relay, core.RoomStore, *app.Registry) {
	t.Helper()
	rooms := app.NewRoomStore(func() time.Time { return testNow })
	reg := app.NewRegistry()
	r := New(rooms, reg, out)
	r.Now = func() time.Time { return testNow }
	return r, rooms, reg
}

func frame(t *testing.T, event core.EventType, payload any) []byte {
	t.Helper()
	env := map[string]any{"type": event}
	if payload != nil {
		env["payload"] = payload
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return b
}

func memberIDs(members []domain.Member) []domain.ConnID {
	out := make([]domain.ConnID, 0, len(members))
	for _, m := range members {
		out = append(out, m.ConnID)
	}
	return out
}

func recipients(ds []delivery) []domain.ConnID {
	out := make([]domain.ConnID, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.To)
	}
	return out
}

func errorMessage(t *testing.T, d delivery) string {
	t.Helper()
	require.Equal(t, core.EventError, d.Event)
	notice, ok := d.Payload.(core.ErrorNotice)
	require.True(t, ok)
	return notice.Message
}

func TestJoin_UnseenRoomCreatesIt(t *testing.T) {
	out := &recorder{}
	r, rooms, reg := newTestRelay(t, out)

	r.Dispatch("a", frame(t, core.EventJoin, "lobby"))

	sent := out.take()
	require.Len(t, sent, 2)

	assert.Equal(t, domain.ConnID("a"), sent[0].To)
	assert.Equal(t, core.EventRoomUpdate, sent[0].Event)
	update := sent[0].Payload.(core.RoomUpdate)
	assert.Equal(t, domain.RoomID("lobby"), update.RoomID)
	assert.Equal(t, core.ActionUserJoined, update.Action)
	assert.Equal(t, domain.ConnID("a"), update.AffectedConnection)
	assert.Len(t, update.Members, 1)

	assert.Equal(t, core.EventJoined, sent[1].Event)
	ack := sent[1].Payload.(core.MembershipAck)
	assert.Equal(t, domain.ConnID("a"), ack.ConnectionID)
	assert.Equal(t, []domain.ConnID{"a"}, memberIDs(ack.Members))

	assert.Equal(t, 1, rooms.RoomCount())
	room, ok := reg.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("lobby"), room)
}

func TestJoin_SecondMemberBroadcastsToBoth(t *testing.T) {
	out := &recorder{}
	r, _, reg := newTestRelay(t, out)

	r.Dispatch("a", frame(t, core.EventJoin, "lobby"))
	out.take()
	r.Dispatch("b", frame(t, core.EventJoin, map[string]any{
		"roomId":   "lobby",
		"metadata": map[string]any{"displayName": "Bea"},
	}))

	sent := out.take()
	require.Len(t, sent, 3)
	assert.Equal(t, []domain.ConnID{"a", "b", "b"}, recipients(sent))
	for _, d := range sent[:2] {
		update := d.Payload.(core.RoomUpdate)
		assert.Equal(t, []domain.ConnID{"a", "b"}, memberIDs(update.Members))
		assert.Equal(t, domain.ConnID("b"), update.AffectedConnection)
	}
	assert.Equal(t, "Bea", reg.Metadata("b").DisplayName())
}

func TestJoin_MissingRoomID(t *testing.T) {
	for name, payload := range map[string]any{
		"absent":       nil,
		"empty string": "",
		"empty object": map[string]any{},
	} {
		t.Run(name, func(t *testing.T) {
			out := &recorder{}
			r, rooms, _ := newTestRelay(t, out)

			r.Dispatch("a", frame(t, core.EventJoin, payload))

			sent := out.take()
			require.Len(t, sent, 1)
			assert.Contains(t, errorMessage(t, sent[0]), "roomId")
			assert.Zero(t, rooms.RoomCount())
		})
	}
}

func TestJoin_SwitchingRoomsLeavesTheOldOne(t *testing.T) {
	out := &recorder{}
	r, rooms, reg := newTestRelay(t, out)

	r.Dispatch("a", frame(t, core.EventJoin, "one"))
	r.Dispatch("b", frame(t, core.EventJoin, "one"))
	out.take()

	r.Dispatch("a", frame(t, core.EventJoin, "two"))

	sent := out.take()
	require.Len(t, sent, 4)
	assert.Equal(t, domain.ConnID("b"), sent[0].To)
	assert.Equal(t, core.ActionUserLeft, sent[0].Payload.(core.RoomUpdate).Action)
	assert.Equal(t, core.EventLeft, sent[1].Event)
	assert.Equal(t, core.EventRoomUpdate, sent[2].Event)
	assert.Equal(t, core.EventJoined, sent[3].Event)

	assert.Equal(t, []domain.ConnID{"b"}, memberIDs(rooms.Members("one")))
	assert.Equal(t, []domain.ConnID{"a"}, memberIDs(rooms.Members("two")))
	room, _ := reg.RoomOf("a")
	assert.Equal(t, domain.RoomID("two"), room)
}

func TestLeave(t *testing.T) {
	out := &recorder{}
	r, rooms, reg := newTestRelay(t, out)

	r.Dispatch("a", frame(t, core.EventJoin, "lobby"))
	r.Dispatch("b", frame(t, core.EventJoin, "lobby"))
	out.take()

	r.Dispatch("b", frame(t, core.EventLeave, map[string]any{"roomId": "lobby"}))

	sent := out.take()
	require.Len(t, sent, 2)
	assert.Equal(t, domain.ConnID("a"), sent[0].To)
	update := sent[0].Payload.(core.RoomUpdate)
	assert.Equal(t, core.ActionUserLeft, update.Action)
	assert.Equal(t, []domain.ConnID{"a"}, memberIDs(update.Members))
	assert.Equal(t, core.EventLeft, sent[1].Event)
	assert.Equal(t, domain.ConnID("b"), sent[1].To)
	_, inRoom := reg.RoomOf("b")
	assert.False(t, inRoom)

	// the last member leaving deletes the room
	r.Dispatch("a", frame(t, core.EventLeave, "lobby"))

	sent = out.take()
	require.Len(t, sent, 1)
	assert.Equal(t, core.EventLeft, sent[0].Event)
	ack := sent[0].Payload.(core.MembershipAck)
	assert.NotNil(t, ack.Members)
	assert.Empty(t, ack.Members)
	assert.Zero(t, rooms.RoomCount())
}

func TestLeave_NotAMemberOnlyAcks(t *testing.T) {
	out := &recorder{}
	r, _, _ := newTestRelay(t, out)

	r.Dispatch("a", frame(t, core.EventJoin, "lobby"))
	out.take()

	r.Dispatch("b", frame(t, core.EventLeave, "lobby"))

	sent := out.take()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.ConnID("b"), sent[0].To)
	assert.Equal(t, core.EventLeft, sent[0].Event)
}

func offerPayload(sender, target string) map[string]any {
	p := map[string]any{
		"roomId": "lobby",
		"sdp":    map[string]any{"type": "offer", "sdp": "v=0"},
	}
	if sender != "" {
		p["sender"] = sender
	}
	if target != "" {
		p["target"] = target
	}
	return p
}

func joinAll(t *testing.T, r *Relay, out *recorder, ids ...domain.ConnID) {
	t.Helper()
	for _, id := range ids {
		r.Dispatch(id, frame(t, core.EventJoin, "lobby"))
	}
	out.take()
}

func TestOffer_MissingSenderOnlyErrors(t *testing.T) {
	out := &recorder{}
	r, _, _ := newTestRelay(t, out)
	joinAll(t, r, out, "a", "b")

	r.Dispatch("a", frame(t, core.EventOffer, offerPayload("", "")))

	sent := out.take()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.ConnID("a"), sent[0].To)
	assert.Contains(t, errorMessage(t, sent[0]), "sender")
}

func TestOffer_TargetGetsItAlone(t *testing.T) {
	out := &recorder{}
	r, _, _ := newTestRelay(t, out)
	joinAll(t, r, out, "a", "b", "c")

	r.Dispatch("a", frame(t, core.EventOffer, offerPayload("a", "c")))

	sent := out.take()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.ConnID("c"), sent[0].To)
	assert.Equal(t, core.EventOffer, sent[0].Event)
	relayed := sent[0].Payload.(core.SignalRelay)
	assert.Equal(t, domain.ConnID("a"), relayed.Sender)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(relayed.Payload))
}

func TestAnswer_BroadcastExcludesSender(t *testing.T) {
	out := &recorder{}
	r, _, _ := newTestRelay(t, out)
	joinAll(t, r, out, "a", "b", "c")

	p := offerPayload("b", "")
	p["sdp"] = map[string]any{"type": "answer", "sdp": "v=0"}
	r.Dispatch("b", frame(t, core.EventAnswer, p))

	sent := out.take()
	assert.Equal(t, []domain.ConnID{"a", "c"}, recipients(sent))
	for _, d := range sent {
		assert.Equal(t, core.EventAnswer, d.Event)
	}
}

// deliveredPayload encodes the single delivery the way the adapter would and
// returns the wire bytes of its "payload" field.
func deliveredPayload(t *testing.T, sent []delivery) string {
	t.Helper()
	require.Len(t, sent, 1)
	frame, err := core.EncodeEnvelope(sent[0].Event, sent[0].Payload)
	require.NoError(t, err)
	var env struct {
		Payload struct {
			Payload json.RawMessage `json:"payload"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))
	return string(env.Payload.Payload)
}

func TestNegotiation_PayloadIsForwardedVerbatim(t *testing.T) {
	tests := []struct {
		name  string
		event core.EventType
		field string
		value string
	}{
		{"bare string sdp", core.EventOffer, "sdp", `"v=0\r\n"`},
		{"rollback with empty sdp", core.EventOffer, "sdp", `{"type":"rollback","sdp":""}`},
		{"description without type", core.EventAnswer, "sdp", `{"sdp":"v=0","extra":1}`},
		{"string candidate", core.EventICECandidate, "candidate", `"candidate:1 1 udp 1 10.0.0.1 5000 typ host"`},
		{"candidate with unknown fields", core.EventICECandidate, "candidate", `{"candidate":"c","sdpMid":"0","foo":"bar"}`},
		{"end of candidates", core.EventICECandidate, "candidate", `{"candidate":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &recorder{}
			r, _, _ := newTestRelay(t, out)
			joinAll(t, r, out, "a", "b")

			data := `{"type":"` + string(tt.event) + `","payload":{"roomId":"lobby","sender":"a","` + tt.field + `":` + tt.value + `}}`
			r.Dispatch("a", []byte(data))

			sent := out.take()
			require.Len(t, sent, 1)
			assert.Equal(t, domain.ConnID("b"), sent[0].To)
			assert.Equal(t, tt.event, sent[0].Event)
			assert.JSONEq(t, tt.value, deliveredPayload(t, sent))
		})
	}
}

func TestNegotiation_NullPayloadIsMissing(t *testing.T) {
	tests := []struct {
		event core.EventType
		field string
	}{
		{core.EventOffer, "sdp"},
		{core.EventICECandidate, "candidate"},
	}
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			out := &recorder{}
			r, _, _ := newTestRelay(t, out)
			joinAll(t, r, out, "a", "b")

			data := `{"type":"` + string(tt.event) + `","payload":{"roomId":"lobby","sender":"a","` + tt.field + `":null}}`
			r.Dispatch("a", []byte(data))

			sent := out.take()
			require.Len(t, sent, 1)
			assert.Equal(t, domain.ConnID("a"), sent[0].To)
			msg := errorMessage(t, sent[0])
			assert.Contains(t, msg, ErrMissingField.Error())
			assert.Contains(t, msg, tt.field)
		})
	}
}

func TestICECandidate(t *testing.T) {
	out := &recorder{}
	r, _, _ := newTestRelay(t, out)
	joinAll(t, r, out, "a", "b")

	r.Dispatch("a", frame(t, core.EventICECandidate, map[string]any{
		"roomId":    "lobby",
		"sender":    "a",
		"candidate": map[string]any{"candidate": "candidate:1 1 udp 2122260223 10.0.0.1 5000 typ host", "sdpMid": "0"},
	}))

	sent := out.take()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.ConnID("b"), sent[0].To)
	assert.JSONEq(t, `{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 5000 typ host","sdpMid":"0"}`, deliveredPayload(t, sent))

	r.Dispatch("a", frame(t, core.EventICECandidate, map[string]any{"roomId": "lobby", "sender": "a"}))
	sent = out.take()
	require.Len(t, sent, 1)
	assert.Contains(t, errorMessage(t, sent[0]), "candidate")
}

func TestChat_DeliveredToEveryoneIncludingSender(t *testing.T) {
	out := &recorder{}
	r, _, _ := newTestRelay(t, out)
	joinAll(t, r, out, "a", "b")

	r.Dispatch("a", frame(t, core.EventChatMessage, map[string]any{
		"roomId":  "lobby",
		"sender":  "a",
		"message": "  hello  ",
	}))

	sent := out.take()
	require.Len(t, sent, 2)
	assert.Equal(t, []domain.ConnID{"a", "b"}, recipients(sent))
	msg := sent[0].Payload.(core.ChatMessage)
	assert.Equal(t, "hello", msg.Message)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, testNow.UnixMilli(), msg.Timestamp)
	assert.Equal(t, "2024-05-01T12:00:00Z", msg.Time)
	assert.Equal(t, msg.ID, sent[1].Payload.(core.ChatMessage).ID)
}

func TestChat_Validation(t *testing.T) {
	out := &recorder{}
	r, _, _ := newTestRelay(t, out)
	joinAll(t, r, out, "a")

	r.Dispatch("a", frame(t, core.EventChatMessage, map[string]any{"roomId": "lobby", "sender": "a"}))
	sent := out.take()
	require.Len(t, sent, 1)
	assert.Contains(t, errorMessage(t, sent[0]), "message")

	// whitespace is not missing; it is delivered trimmed
	r.Dispatch("a", frame(t, core.EventChatMessage, map[string]any{"roomId": "lobby", "sender": "a", "message": "   "}))
	sent = out.take()
	require.Len(t, sent, 1)
	assert.Equal(t, "", sent[0].Payload.(core.ChatMessage).Message)
}

func TestDisconnect_RemovesMemberAndNotifies(t *testing.T) {
	out := &recorder{}
	r, rooms, reg := newTestRelay(t, out)
	joinAll(t, r, out, "a", "b")

	r.Disconnect("b", "transport close")

	sent := out.take()
	require.Len(t, sent, 2)
	assert.Equal(t, []domain.ConnID{"a", "a"}, recipients(sent))
	update := sent[0].Payload.(core.RoomUpdate)
	assert.Equal(t, core.ActionUserDisconnected, update.Action)
	assert.Equal(t, []domain.ConnID{"a"}, memberIDs(update.Members))
	notice := sent[1].Payload.(core.UserDisconnected)
	assert.Equal(t, domain.ConnID("b"), notice.DisconnectedConnection)
	assert.Equal(t, "transport close", notice.Reason)
	assert.Equal(t, 1, reg.Count())

	r.Disconnect("a", "transport close")
	assert.Empty(t, out.take())
	assert.Zero(t, rooms.RoomCount())
	assert.Zero(t, reg.Count())
}

func TestDisconnect_WithoutRoomIsSilent(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mock.NewMockOutbound(ctrl)
	r, _, reg := newTestRelay(t, out)
	reg.Ensure("a")

	r.Disconnect("a", "transport close")
	r.Disconnect("a", "transport close")

	assert.Zero(t, reg.Count())
}

func TestDisconnect_AfterLeaveIsSilent(t *testing.T) {
	out := &recorder{}
	r, rooms, reg := newTestRelay(t, out)
	joinAll(t, r, out, "a", "b")

	r.Dispatch("b", frame(t, core.EventLeave, "lobby"))
	out.take()
	require.Equal(t, 2, reg.Count())

	r.Disconnect("b", "transport close")

	assert.Empty(t, out.take())
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, []domain.ConnID{"a"}, memberIDs(rooms.Members("lobby")))
}

func TestCallUser_NonMemberOnlyErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mock.NewMockOutbound(ctrl)
	r, rooms, _ := newTestRelay(t, out)
	rooms.Join("a", "lobby", nil)

	out.EXPECT().
		Send(domain.ConnID("a"), core.EventError, gomock.Any()).
		DoAndReturn(func(_ domain.ConnID, _ core.EventType, payload any) error {
			assert.Contains(t, payload.(core.ErrorNotice).Message, ErrNotInRoom.Error())
			return nil
		})

	r.Dispatch("a", frame(t, core.EventCallUser, map[string]any{
		"roomId":         "lobby",
		"targetSocketId": "ghost",
		"sender":         "a",
	}))
}

func TestCallUser_ReachesTarget(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mock.NewMockOutbound(ctrl)
	r, rooms, _ := newTestRelay(t, out)
	rooms.Join("a", "lobby", nil)
	rooms.Join("b", "lobby", nil)

	out.EXPECT().Send(domain.ConnID("b"), core.EventIncomingCall, core.CallSignal{
		ActorConnectionID: "a",
		RoomID:            "lobby",
		Timestamp:         testNow.UnixMilli(),
	})

	r.Dispatch("a", frame(t, core.EventCallUser, map[string]any{
		"roomId":         "lobby",
		"targetSocketId": "b",
		"sender":         "a",
	}))
}

func TestCallReply_NoMembershipCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mock.NewMockOutbound(ctrl)
	r, _, _ := newTestRelay(t, out)

	gomock.InOrder(
		out.EXPECT().Send(domain.ConnID("a"), core.EventCallAccepted, gomock.Any()),
		out.EXPECT().Send(domain.ConnID("a"), core.EventCallRejected, gomock.Any()),
	)

	payload := map[string]any{"targetSocketId": "a", "sender": "b"}
	r.Dispatch("b", frame(t, core.EventCallAccepted, payload))
	r.Dispatch("b", frame(t, core.EventCallRejected, payload))
}

func TestEndCall_GoesToWholeRoom(t *testing.T) {
	out := &recorder{}
	r, _, _ := newTestRelay(t, out)
	joinAll(t, r, out, "a", "b")

	r.Dispatch("a", frame(t, core.EventEndCall, map[string]any{"roomId": "lobby", "sender": "a"}))

	sent := out.take()
	assert.Equal(t, []domain.ConnID{"a", "b"}, recipients(sent))
	for _, d := range sent {
		assert.Equal(t, core.EventCallEnded, d.Event)
	}

	r.Dispatch("a", frame(t, core.EventEndCall, map[string]any{"sender": "a"}))
	sent = out.take()
	require.Len(t, sent, 1)
	assert.Contains(t, errorMessage(t, sent[0]), "roomId")
}

func TestPing(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := mock.NewMockOutbound(ctrl)
	r, _, _ := newTestRelay(t, out)

	out.EXPECT().Send(domain.ConnID("a"), core.EventPong, core.Pong{Timestamp: testNow.UnixMilli()})

	r.Dispatch("a", []byte(`{"type":"ping"}`))
}

func TestDispatch_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown event", `{"type":"dance","payload":{}}`, "unknown event: dance"},
		{"malformed envelope", `{"type":`, "bad payload"},
		{"payload of wrong shape", `{"type":"chat-message","payload":[1,2]}`, "bad payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &recorder{}
			r, _, _ := newTestRelay(t, out)

			r.Dispatch("a", []byte(tt.data))

			sent := out.take()
			require.Len(t, sent, 1)
			assert.Equal(t, domain.ConnID("a"), sent[0].To)
			assert.Contains(t, errorMessage(t, sent[0]), tt.want)
		})
	}
}

// brokenStore panics on any method it does not override.
type brokenStore struct{ core.RoomStore }

func TestDispatch_RecoversHandlerPanic(t *testing.T) {
	out := &recorder{}
	r, _, _ := newTestRelay(t, out)
	r.Rooms = brokenStore{}

	require.NotPanics(t, func() {
		r.Dispatch("a", frame(t, core.EventChatMessage, map[string]any{"roomId": "lobby", "sender": "a", "message": "hi"}))
	})

	sent := out.take()
	require.Len(t, sent, 1)
	assert.Equal(t, "internal error", errorMessage(t, sent[0]))
}
