package api_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xclinic/dental-clinic/internal/realtime"
)

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/realtime/v1/websocket?access_token=" + s.token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn) realtime.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRealtime_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/realtime/v1/websocket"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRealtime_SubscribeReceivesChanges(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t)

	sub := realtime.Subscription{Table: realtime.TablePatients, ClinicID: s.clinicID, Event: realtime.EventAll}
	require.NoError(t, conn.WriteJSON(realtime.SubscribeMessage("1", sub)))

	msg := readServerMessage(t, conn)
	assert.Equal(t, realtime.TypeSubscribed, msg.Type)
	assert.Equal(t, "1", msg.Ref)
	require.Eventually(t, func() bool {
		return s.hub.SubscriberCount(realtime.TablePatients, s.clinicID) == 1
	}, time.Second, 10*time.Millisecond)

	p := s.createPatient(t, "Ana")

	msg = readServerMessage(t, conn)
	assert.Equal(t, realtime.TypeChange, msg.Type)
	assert.Equal(t, "1", msg.Ref)
	require.NotNil(t, msg.Change)
	assert.Equal(t, realtime.TablePatients, msg.Table)
	assert.Equal(t, realtime.EventInsert, msg.Event)
	assert.Equal(t, p.ID, msg.RecordID)

	require.NoError(t, conn.WriteJSON(realtime.ClientMessage{Action: realtime.ActionUnsubscribe, Ref: "1"}))
	msg = readServerMessage(t, conn)
	assert.Equal(t, realtime.TypeUnsubscribed, msg.Type)
	assert.Equal(t, 0, s.hub.SubscriberCount(realtime.TablePatients, s.clinicID))
}

func TestRealtime_RejectsOtherClinic(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t)

	sub := realtime.Subscription{Table: realtime.TableAppointments, ClinicID: uuid.New(), Event: realtime.EventAll}
	require.NoError(t, conn.WriteJSON(realtime.SubscribeMessage("7", sub)))

	msg := readServerMessage(t, conn)
	assert.Equal(t, realtime.TypeError, msg.Type)
	assert.Equal(t, "7", msg.Ref)
	assert.Contains(t, msg.Error, "clinic does not match token")
	assert.Equal(t, 0, s.hub.SubscriberCount(realtime.TableAppointments, sub.ClinicID))

	require.NoError(t, conn.WriteJSON(realtime.ClientMessage{Action: "shout", Ref: "8"}))
	msg = readServerMessage(t, conn)
	assert.Equal(t, realtime.TypeError, msg.Type)
}

func TestRealtime_CloseDropsConnections(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t)

	require.Eventually(t, func() bool { return s.ws.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	s.ws.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return s.ws.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
}
