package relay

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVerifier maps tokens straight to member ids.
type fakeVerifier struct {
	tokens map[string]string
}

func (v *fakeVerifier) Verify(_ context.Context, token string) (string, error) {
	uid, ok := v.tokens[token]
	if !ok {
		return "", errors.New("invalid token")
	}
	return uid, nil
}

func startRelay(t *testing.T, store Store) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := &fakeVerifier{tokens: map[string]string{
		"tok-alice": "alice",
		"tok-bob":   "bob",
	}}
	s := NewServer(Config{NodeId: "test"}, verifier, store, nil)

	e := gin.New()
	e.GET("/ws", s.HandleWS)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return s, ts
}

func dialRelay(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func eventName(t *testing.T, frame map[string]json.RawMessage) string {
	t.Helper()
	var event string
	require.NoError(t, json.Unmarshal(frame["event"], &event))
	return event
}

func TestWSRejectsInvalidToken(t *testing.T) {
	s, ts := startRelay(t, &fakeStore{})

	// the handshake upgrades, then verification fails and the relay just
	// closes: the first read errors out
	conn := dialRelay(t, ts, "tok-nobody")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	assert.Equal(t, 0, s.registry.Len(), "failed auth must never register a session")
}

func TestWSRelayEndToEnd(t *testing.T) {
	store := &fakeStore{}
	s, ts := startRelay(t, store)

	alice := dialRelay(t, ts, "tok-alice")
	bob := dialRelay(t, ts, "tok-bob")

	require.Eventually(t, func() bool { return s.registry.Len() == 2 },
		3*time.Second, 10*time.Millisecond)

	writeFrame(t, alice,
		`{"event":"updateLocation","data":{"lat":-34.6037,"lng":-58.3816,"timestamp":1700000000}}`)

	// broadcast reaches the group, sender included
	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := readFrame(t, conn)
		assert.Equal(t, EventLocationUpdate, eventName(t, frame))
		assert.JSONEq(t,
			`{"uid":"alice","location":{"lat":-34.6037,"lng":-58.3816,"timestamp":1700000000}}`,
			string(frame["data"]))
	}

	// snapshot reply goes to the requester only
	writeFrame(t, bob, `{"event":"requestAllLocations"}`)
	frame := readFrame(t, bob)
	assert.Equal(t, EventAllLocations, eventName(t, frame))
	assert.JSONEq(t,
		`[{"uid":"alice","location":{"lat":-34.6037,"lng":-58.3816,"timestamp":1700000000}}]`,
		string(frame["data"]))

	// disconnect: peers get the departure notice, the position is persisted
	require.NoError(t, alice.Close())

	frame = readFrame(t, bob)
	assert.Equal(t, EventUserDisconnected, eventName(t, frame))
	assert.JSONEq(t, `{"uid":"alice"}`, string(frame["data"]))

	require.Eventually(t, func() bool { return s.registry.Len() == 1 },
		3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(store.saved()) == 1 },
		3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "alice", store.saved()[0].uid)
}

func TestWSUnknownEventIgnored(t *testing.T) {
	s, ts := startRelay(t, &fakeStore{})

	alice := dialRelay(t, ts, "tok-alice")
	require.Eventually(t, func() bool { return s.registry.Len() == 1 },
		3*time.Second, 10*time.Millisecond)

	writeFrame(t, alice, `{"event":"teleport","data":{}}`)

	// connection stays up: a real event still round-trips
	writeFrame(t, alice, `{"event":"requestAllLocations"}`)
	frame := readFrame(t, alice)
	assert.Equal(t, EventAllLocations, eventName(t, frame))
}
