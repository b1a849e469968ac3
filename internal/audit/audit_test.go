package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher

	d.Emit(context.Background(), Event{EventType: TypeSignIn})
	d.Close()
	require.Zero(t, d.Dropped())

	// no sink means auditing is off: the constructor returns nil
	require.Nil(t, NewDispatcher(nil, 8, true))
}

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(sink, 8, true)

	d.Emit(context.Background(), Event{EventType: TypeSignIn, UserID: "u1", Success: true})
	d.Emit(context.Background(), Event{EventType: TypeLogout, UserID: "u1", Success: true})
	d.Close()

	first := <-sink.Events()
	require.Equal(t, TypeSignIn, first.EventType)
	require.Equal(t, "u1", first.UserID)

	second := <-sink.Events()
	require.Equal(t, TypeLogout, second.EventType)
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(sink, 16, true)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: TypeRefresh})
	}
	d.Close()

	delivered := 0
	for {
		select {
		case <-sink.Events():
			delivered++
		default:
			require.Equal(t, 10, delivered)
			return
		}
	}
}

func TestDispatcherIgnoresEmitAfterClose(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(sink, 4, true)
	d.Close()

	d.Emit(context.Background(), Event{EventType: TypeSignIn})

	select {
	case event := <-sink.Events():
		t.Fatalf("unexpected delivery after close: %+v", event)
	default:
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		EventType: TypeReplayRejected,
		UserID:    "u1",
		SessionID: "s1",
		Error:     "blacklisted refresh token presented",
	})

	var decoded Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, TypeReplayRejected, decoded.EventType)
	require.Equal(t, "s1", decoded.SessionID)
	require.False(t, decoded.Success)
}
