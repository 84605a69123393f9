package insights

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/insightd/internal/indicators"
)

const testPrefix = "test.insights"

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func subscribe(t *testing.T, nc *nats.Conn, subject string) *nats.Subscription {
	t.Helper()
	sub, err := nc.SubscribeSync(subject)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	return sub
}

func TestNATSPublisher_Subject(t *testing.T) {
	p := NewNATSPublisher(nil, testPrefix)
	assert.Equal(t, "test.insights.recorded", p.Subject(SubjectRecorded))
	assert.Equal(t, "test.insights.deleted", p.Subject(SubjectDeleted))
}

func TestNATSPublisher_PublishRecorded(t *testing.T) {
	server := startTestNATSServer(t)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub := subscribe(t, nc, testPrefix+".recorded")

	pub, err := ConnectNATS(server.ClientURL(), testPrefix, nil)
	require.NoError(t, err)
	defer pub.Close()

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := RecordedEvent{
		EventID:     "evt-1",
		UserID:      "u1",
		PatternType: indicators.SelfSabotage,
		Strength:    9,
		Occurrences: 3,
		Significant: true,
		RecordedAt:  at,
	}
	require.NoError(t, pub.PublishRecorded(context.Background(), ev))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", msg.Header.Get(nats.MsgIdHdr))

	var got RecordedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, ev.UserID, got.UserID)
	assert.Equal(t, ev.PatternType, got.PatternType)
	assert.Equal(t, 3, got.Occurrences)
	assert.True(t, got.Significant)
	assert.True(t, got.RecordedAt.Equal(at))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &raw))
	assert.NotContains(t, raw, "evidence", "events never carry evidence")
}

func TestNATSPublisher_PublishDeleted(t *testing.T) {
	server := startTestNATSServer(t)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub := subscribe(t, nc, testPrefix+".deleted")

	pub := NewNATSPublisher(nc, testPrefix)
	require.NoError(t, pub.PublishDeleted(context.Background(), DeletedEvent{
		EventID:     "evt-2",
		UserID:      "u1",
		PatternType: indicators.Avoidance,
		DeletedAt:   time.Now().UTC(),
	}))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var got DeletedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, indicators.Avoidance, got.PatternType)

	// A borrowed connection stays open.
	require.NoError(t, pub.Close())
	assert.False(t, nc.IsClosed())
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	server := startTestNATSServer(t)

	pub, err := ConnectNATS(server.ClientURL(), testPrefix, nil)
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.PublishRecorded(ctx, RecordedEvent{EventID: "x"}), context.Canceled)
}

func TestConnectNATS_Unreachable(t *testing.T) {
	_, err := ConnectNATS("nats://127.0.0.1:1", testPrefix, nil)
	assert.Error(t, err)
}

func TestService_PublishesOverNATS(t *testing.T) {
	server := startTestNATSServer(t)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	recorded := subscribe(t, nc, testPrefix+".recorded")
	deleted := subscribe(t, nc, testPrefix+".deleted")

	pub, err := ConnectNATS(server.ClientURL(), testPrefix, nil)
	require.NoError(t, err)
	defer pub.Close()

	svc, _ := newTestService(t, WithPublisher(pub))
	ctx := context.Background()
	svc.Record(ctx, "u1", result(indicators.SelfSabotage, 9, "feeling undeserving"))
	require.NoError(t, svc.Delete(ctx, "u1", indicators.SelfSabotage))

	msg, err := recorded.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var rec RecordedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &rec))
	assert.Equal(t, 1, rec.Occurrences)
	assert.False(t, rec.Significant)
	assert.NotEmpty(t, msg.Header.Get(nats.MsgIdHdr))

	msg, err = deleted.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var del DeletedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &del))
	assert.Equal(t, "u1", del.UserID)
}
