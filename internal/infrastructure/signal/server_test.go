package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/services"
	"meshcall/internal/infrastructure/monitoring"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	collectorOnce sync.Once
	collector     *monitoring.Collector
)

// sharedCollector avoids re-registering prometheus metrics across tests.
func sharedCollector() *monitoring.Collector {
	collectorOnce.Do(func() {
		collector = monitoring.NewCollector()
	})
	return collector
}

func newTestServer(t *testing.T) (*WebSocketServer, *httptest.Server) {
	t.Helper()
	auth := services.NewAuthService("test-secret", time.Hour)
	srv := NewWebSocketServer(auth, sharedCollector(), zap.NewNop().Sugar())

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialAndRegister(t *testing.T, ts *httptest.Server, name, resumeToken string) (*websocket.Conn, RegisteredPayload) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg, err := NewMessage(TypeRegister, "", RegisterPayload{DisplayName: name, ResumeToken: resumeToken})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))

	var reply Message
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, TypeRegistered, reply.Type)

	var reg RegisteredPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &reg))
	return conn, reg
}

func TestRegisterAssignsUniqueIDAndToken(t *testing.T) {
	srv, ts := newTestServer(t)

	_, first := dialAndRegister(t, ts, "Ann", "")
	_, second := dialAndRegister(t, ts, "Bea", "")

	assert.NotEmpty(t, first.PeerID)
	assert.NotEmpty(t, first.ResumeToken)
	assert.NotEqual(t, first.PeerID, second.PeerID)
	assert.True(t, srv.IsPeerConnected(first.PeerID))
	assert.True(t, srv.IsPeerConnected(second.PeerID))
}

func TestResumeTokenRestoresPeerID(t *testing.T) {
	_, ts := newTestServer(t)

	conn, first := dialAndRegister(t, ts, "Ann", "")
	conn.Close()

	_, second := dialAndRegister(t, ts, "Ann", first.ResumeToken)
	assert.Equal(t, first.PeerID, second.PeerID)
}

func TestInvalidResumeTokenGetsFreshID(t *testing.T) {
	_, ts := newTestServer(t)

	_, reg := dialAndRegister(t, ts, "Ann", "garbage-token")
	assert.NotEmpty(t, reg.PeerID)
}

func TestRelayStampsSender(t *testing.T) {
	_, ts := newTestServer(t)

	annConn, ann := dialAndRegister(t, ts, "Ann", "")
	beaConn, bea := dialAndRegister(t, ts, "Bea", "")

	offer, err := NewMessage(TypeOffer, bea.PeerID, SDPPayload{SDP: "v=0 fake offer"})
	require.NoError(t, err)
	require.NoError(t, annConn.WriteJSON(offer))

	beaConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Message
	require.NoError(t, beaConn.ReadJSON(&received))

	assert.Equal(t, TypeOffer, received.Type)
	assert.Equal(t, ann.PeerID, received.FromPeer)

	var sdp SDPPayload
	require.NoError(t, json.Unmarshal(received.Payload, &sdp))
	assert.Equal(t, "v=0 fake offer", sdp.SDP)
}

func TestRelayToUnknownPeerReturnsError(t *testing.T) {
	_, ts := newTestServer(t)

	conn, _ := dialAndRegister(t, ts, "Ann", "")

	offer, err := NewMessage(TypeOffer, "MISSING", SDPPayload{SDP: "v=0"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(offer))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply Message
	require.NoError(t, conn.ReadJSON(&reply))

	assert.Equal(t, TypeError, reply.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &payload))
	assert.Equal(t, domain.PeerID("MISSING"), payload.TargetPeer)
}

func TestRelayToSelfRejected(t *testing.T) {
	_, ts := newTestServer(t)

	conn, reg := dialAndRegister(t, ts, "Ann", "")

	offer, err := NewMessage(TypeOffer, reg.PeerID, SDPPayload{SDP: "v=0"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(offer))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply Message
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, TypeError, reply.Type)
}

func TestConnectionWithoutRegisterDropped(t *testing.T) {
	_, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	offer, err := NewMessage(TypeOffer, "BBBB", SDPPayload{SDP: "v=0"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(offer))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply Message
	assert.Error(t, conn.ReadJSON(&reply))
}

func TestReconnectClosesOldConnection(t *testing.T) {
	srv, ts := newTestServer(t)

	oldConn, reg := dialAndRegister(t, ts, "Ann", "")
	_, second := dialAndRegister(t, ts, "Ann", reg.ResumeToken)
	require.Equal(t, reg.PeerID, second.PeerID)

	oldConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var discard Message
	assert.Error(t, oldConn.ReadJSON(&discard))
	assert.True(t, srv.IsPeerConnected(reg.PeerID))
}
