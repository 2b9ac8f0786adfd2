package signal

import (
	"testing"

	"syncplay/internal/core/domain"
	"syncplay/internal/infrastructure/monitoring"
	"syncplay/internal/infrastructure/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fullConn struct {
	fakeConn
}

func (c *fullConn) Send(data []byte) error { return domain.ErrSendBufferFull }

func TestFanout_Broadcast(t *testing.T) {
	registry := session.NewRegistry()
	fanout := NewFanout(registry, monitoring.NewPrometheusCollector(prometheus.NewRegistry()), zaptest.NewLogger(t).Sugar())

	origin, sameUser, other, slow := &fakeConn{}, &fakeConn{}, &fakeConn{}, &fullConn{}
	elsewhere := &fakeConn{}
	require.NoError(t, registry.Register("room-1", "origin", origin))
	require.NoError(t, registry.Register("room-1", "same-user", sameUser))
	require.NoError(t, registry.Register("room-1", "other", other))
	require.NoError(t, registry.Register("room-1", "slow", slow))
	require.NoError(t, registry.Register("room-2", "elsewhere", elsewhere))
	require.NoError(t, registry.BindParticipant("origin", "p1"))
	require.NoError(t, registry.BindParticipant("same-user", "p1"))
	require.NoError(t, registry.BindParticipant("other", "p2"))

	delivered := fanout.Broadcast("room-1", "origin", "p1", OutboundMessage{Type: MsgSeek, Data: PositionPayload{Position: 3}})
	assert.Equal(t, 1, delivered)

	assert.Empty(t, origin.messages(t))
	assert.Empty(t, sameUser.messages(t))
	assert.Empty(t, elsewhere.messages(t))
	msgs := other.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, MsgSeek, msgs[0]["type"])
	assert.True(t, slow.closed, "a client that stopped reading is disconnected")
}

func TestFanout_SystemEventsReachEveryone(t *testing.T) {
	registry := session.NewRegistry()
	fanout := NewFanout(registry, monitoring.NewPrometheusCollector(prometheus.NewRegistry()), zaptest.NewLogger(t).Sugar())

	a, b := &fakeConn{}, &fakeConn{}
	require.NoError(t, registry.Register("room-1", "a", a))
	require.NoError(t, registry.Register("room-1", "b", b))

	assert.Equal(t, 2, fanout.Broadcast("room-1", "", "", OutboundMessage{Type: MsgUserLeft, Data: UserLeftPayload{UserID: "p9"}}))
}
