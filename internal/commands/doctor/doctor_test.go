package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/store/jsonfile"
)

type staticCheck struct {
	name  string
	items []CheckItem
}

func (s staticCheck) Name() string { return s.name }

func (s staticCheck) Run(context.Context) Result {
	return Result{Name: s.name, Items: s.items}
}

func TestSummarize(t *testing.T) {
	results := RunAll(context.Background(), []Check{
		staticCheck{name: "a", items: []CheckItem{
			{Label: "ok", Status: StatusPass},
			{Label: "meh", Status: StatusWarn, Fixable: true},
		}},
		staticCheck{name: "b", items: []CheckItem{
			{Label: "bad", Status: StatusFail},
			{Label: "fixed", Status: StatusPass, Fixable: true},
		}},
	})

	c := Summarize(results)
	assert.Equal(t, Counts{Passed: 2, Warned: 1, Failed: 1, Fixable: 1}, c)
	assert.False(t, c.Healthy())
	assert.Equal(t, "2 passed, 1 warnings, 1 failed", c.String())
}

func TestRunAll_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := RunAll(ctx, []Check{staticCheck{name: "a", items: []CheckItem{{Status: StatusPass}}}})
	require.Len(t, results, 1)
	assert.Equal(t, StatusFail, results[0].Items[0].Status)
}

func TestStatus_JSON(t *testing.T) {
	data, err := json.Marshal(CheckItem{Label: "x", Status: StatusWarn})
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"x","status":"warn"}`, string(data))
}

func itemsByLabel(r Result) map[string]CheckItem {
	m := make(map[string]CheckItem, len(r.Items))
	for _, it := range r.Items {
		m[it.Label] = it
	}
	return m
}

func TestConfigCheck(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Server.AllowedOrigins = []string{"http://localhost"}

	result := NewConfigCheck(&cfg, "").Run(context.Background())
	items := itemsByLabel(result)
	require.Len(t, items, 3)
	assert.Equal(t, StatusPass, items["Config file"].Status)
	assert.Equal(t, "not found, using defaults", items["Config file"].Detail)
	assert.Equal(t, StatusPass, items["Data directory"].Status)
	assert.Equal(t, StatusPass, items["Notifications"].Status)
	assert.Equal(t, "outbox driver, 0 pending", items["Notifications"].Detail)

	cfg.Notifications.Driver = config.DriverNone
	items = itemsByLabel(NewConfigCheck(&cfg, "").Run(context.Background()))
	require.Len(t, items, 3, "a disabled driver is reported once")
	assert.Equal(t, StatusWarn, items["Notifications"].Status)

	result = NewConfigCheck(nil, "").Run(context.Background())
	assert.Equal(t, StatusFail, result.Items[0].Status)
}

func TestConfigCheck_AsynqHidesCredentials(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Server.AllowedOrigins = []string{"http://localhost"}
	cfg.Notifications.Driver = config.DriverAsynq
	cfg.Notifications.RedisURL = "redis://:hunter2@cache.internal:6380/0"

	item := itemsByLabel(NewConfigCheck(&cfg, "").Run(context.Background()))["Notifications"]
	assert.Equal(t, StatusPass, item.Status)
	assert.Contains(t, item.Detail, "cache.internal:6380")
	assert.NotContains(t, item.Detail, "hunter2")
}

func TestConfigCheck_MissingDataDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "parley")
	cfg.Server.AllowedOrigins = []string{"http://localhost"}

	item := itemsByLabel(NewConfigCheck(&cfg, "").Run(context.Background()))["Data directory"]
	assert.Equal(t, StatusWarn, item.Status)
	assert.Contains(t, item.Detail, "created on the first send")
}

func TestConfigCheck_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.PollInterval = time.Millisecond

	result := NewConfigCheck(&cfg, "").Run(context.Background())
	require.NotEmpty(t, result.Items)
	assert.Equal(t, "poll_interval", result.Items[0].Label)
	assert.Equal(t, StatusFail, result.Items[0].Status)
}

func newStores(t *testing.T) (*jsonfile.MsgStore, *jsonfile.RoomStore) {
	t.Helper()
	dir := t.TempDir()
	return jsonfile.NewMsgStore(filepath.Join(dir, "conversations")),
		jsonfile.NewRoomStore(filepath.Join(dir, "rooms"))
}

// send appends a message and patches the summary the way the service does.
func send(t *testing.T, msgs messaging.Store, rooms room.Store, key convo.Key, sender convo.ParticipantID, body string) messaging.Message {
	t.Helper()
	ctx := context.Background()

	msg, err := msgs.Append(ctx, key, sender, body)
	require.NoError(t, err)

	pair := key.Participants()
	_, err = rooms.MergePatch(ctx, key, room.Patch{
		room.AddParticipants{IDs: pair[:]},
		room.SetLastMessage{Body: msg.Body, SenderID: sender, At: msg.SentAt},
		room.AdvanceReadMarker{ParticipantID: sender, Upto: msg.SentAt},
	})
	require.NoError(t, err)
	return msg
}

func TestLogCheck(t *testing.T) {
	msgs, rooms := newStores(t)

	result := NewLogCheck(msgs).Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, "no conversations yet", result.Items[0].Detail)

	send(t, msgs, rooms, "alice:bob", "alice", "one")
	send(t, msgs, rooms, "alice:bob", "bob", "two")
	send(t, msgs, rooms, "bob:carol", "carol", "three")

	result = NewLogCheck(msgs).Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, "2 of 2 conversations in order", result.Items[0].Detail)
}

func TestCheckOrder(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		msgs []messaging.Message
		want string
	}{
		{
			name: "ordered",
			msgs: []messaging.Message{{Seq: 1, SentAt: at}, {Seq: 2, SentAt: at.Add(time.Millisecond)}},
		},
		{
			name: "gap",
			msgs: []messaging.Message{{ID: "m1", Seq: 1, SentAt: at}, {ID: "m3", Seq: 3, SentAt: at.Add(time.Second)}},
			want: "message m3 has seq 3, expected 2",
		},
		{
			name: "repeated timestamp",
			msgs: []messaging.Message{{ID: "m1", Seq: 1, SentAt: at}, {ID: "m2", Seq: 2, SentAt: at}},
			want: "message m2 sent at 2024-01-01T00:00:00.000Z is not after seq 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkOrder(tt.msgs))
		})
	}
}

// brokenRooms fails every summary write.
type brokenRooms struct {
	room.Store
}

func (brokenRooms) MergePatch(context.Context, convo.Key, room.Patch) (room.Summary, error) {
	return room.Summary{}, errors.New("disk full")
}

func TestDriftCheck_InSync(t *testing.T) {
	msgs, rooms := newStores(t)
	send(t, msgs, rooms, "alice:bob", "alice", "hi")

	result := NewDriftCheck(msgs, rooms, false).Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusPass, result.Items[0].Status)
}

func TestDriftCheck_DetectsAndRepairs(t *testing.T) {
	ctx := context.Background()
	msgs, rooms := newStores(t)

	send(t, msgs, rooms, "alice:bob", "alice", "first")

	// Appended without a summary patch.
	lost, err := msgs.Append(ctx, "alice:bob", "bob", "lost update")
	require.NoError(t, err)
	_, err = msgs.Append(ctx, "bob:carol", "carol", "no summary at all")
	require.NoError(t, err)

	result := NewDriftCheck(msgs, rooms, false).Run(ctx)
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.Equal(t, StatusWarn, item.Status)
		assert.True(t, item.Fixable)
	}
	assert.Equal(t, 2, Summarize([]Result{result}).Fixable)

	result = NewDriftCheck(msgs, rooms, true).Run(ctx)
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.Equal(t, StatusPass, item.Status, item.Detail)
	}

	summary, err := rooms.Get(ctx, "alice:bob")
	require.NoError(t, err)
	assert.Equal(t, "lost update", summary.LastMessage)
	assert.Equal(t, convo.ParticipantID("bob"), summary.LastSenderID)
	assert.True(t, summary.LastActivityAt.Equal(lost.SentAt))
	assert.True(t, summary.ReadMarker("bob").Equal(lost.SentAt))

	summary, err = rooms.Get(ctx, "bob:carol")
	require.NoError(t, err)
	assert.Len(t, summary.Participants, 2)

	result = NewDriftCheck(msgs, rooms, false).Run(ctx)
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusPass, result.Items[0].Status)
}

func TestDriftCheck_RepairFailure(t *testing.T) {
	ctx := context.Background()
	msgs, rooms := newStores(t)

	_, err := msgs.Append(ctx, "alice:bob", "alice", "hi")
	require.NoError(t, err)

	result := NewDriftCheck(msgs, brokenRooms{rooms}, true).Run(ctx)
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusFail, result.Items[0].Status)
	assert.Contains(t, result.Items[0].Detail, "disk full")
}
