package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
)

type fakeSignal struct {
	err    error
	frames []core.Frame
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func TestDelivery_Send(t *testing.T) {
	reg := app.NewRegistry()
	sig := &fakeSignal{}
	reg.BindSignal("a", "", sig, func() {})
	d := NewDelivery(reg, nil)

	require.NoError(t, d.Send("a", core.EventPong, core.Pong{Timestamp: 7}))

	require.Len(t, sig.frames, 1)
	var env core.Envelope
	require.NoError(t, json.Unmarshal(sig.frames[0], &env))
	assert.Equal(t, core.EventPong, env.Type)
	assert.JSONEq(t, `{"timestamp":7}`, string(env.Payload))
}

func TestDelivery_UnknownConnection(t *testing.T) {
	d := NewDelivery(app.NewRegistry(), nil)
	assert.ErrorIs(t, d.Send("ghost", core.EventPong, nil), ErrUnknownConn)
}

func TestDelivery_Backpressure(t *testing.T) {
	tests := []struct {
		name       string
		policy     app.Policy
		wantCancel bool
	}{
		{"kick", app.SimplePolicy{}, true},
		{"drop", app.DropPolicy{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := app.NewRegistry()
			canceled := false
			reg.BindSignal("a", "", &fakeSignal{err: ErrBackpressure}, func() { canceled = true })
			d := NewDelivery(reg, tt.policy)

			err := d.Send("a", core.EventPong, core.Pong{})

			assert.ErrorIs(t, err, ErrBackpressure)
			assert.Equal(t, tt.wantCancel, canceled)
		})
	}
}

func TestDelivery_ClosedConnectionIsNotKicked(t *testing.T) {
	reg := app.NewRegistry()
	canceled := false
	reg.BindSignal("a", "", &fakeSignal{err: ErrConnClosed}, func() { canceled = true })

	err := NewDelivery(reg, app.SimplePolicy{}).Send("a", core.EventPong, nil)

	assert.ErrorIs(t, err, ErrConnClosed)
	assert.False(t, canceled)
}
