package activitymap_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	accounts "github.com/versehub/go-accounts"
	"github.com/versehub/go-accounts/activitymap"
)

func TestNormalizeStatusChange(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := accounts.ActivityEvent{
		EventType:  accounts.ActivityEventAccountStatusChanged,
		Actor:      accounts.ActorRef{ID: "admin-42", Type: "admin"},
		AccountID:  100,
		FromStatus: accounts.StatusEmailVerified,
		ToStatus:   accounts.StatusRegistered,
		Metadata:   map[string]any{"via": "registration_key"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "admin-42", out.ActorID)
	assert.Equal(t, string(accounts.ActivityEventAccountStatusChanged), out.Verb)
	assert.Equal(t, "account", out.ObjectType)
	assert.Equal(t, "100", out.ObjectID)
	assert.Equal(t, "accounts", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))

	assert.Equal(t, "registration_key", out.Metadata["via"])
	assert.Equal(t, "admin", out.Metadata[activitymap.MetadataKeyActorType])
	assert.Equal(t, string(accounts.StatusEmailVerified), out.Metadata[activitymap.MetadataKeyFromStatus])
	assert.Equal(t, string(accounts.StatusRegistered), out.Metadata[activitymap.MetadataKeyToStatus])

	assert.Len(t, event.Metadata, 1, "source metadata must not be modified")
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  accounts.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "actor id when present",
			event:  accounts.ActivityEvent{Actor: accounts.ActorRef{ID: "actor-1"}, AccountID: 1},
			expect: "actor-1",
		},
		{
			name:   "account id when actor missing",
			event:  accounts.ActivityEvent{AccountID: 2},
			expect: "2",
		},
		{
			name:   "default fallback",
			event:  accounts.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "configured fallback",
			event:  accounts.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("job")},
			expect: "job",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expect, activitymap.Normalize(tc.event, tc.opts...).ActorID)
		})
	}
}

func TestNormalizeZeroTimeAndEmptyMetadata(t *testing.T) {
	out := activitymap.Normalize(accounts.ActivityEvent{EventType: accounts.ActivityEventLoginSuccess})

	assert.False(t, out.OccurredAt.IsZero())
	assert.Nil(t, out.Metadata)
	assert.Empty(t, out.ObjectID)
}

type lineLogger struct{ lines []string }

func (l *lineLogger) Debug(format string, args ...any) {}
func (l *lineLogger) Warn(format string, args ...any)  {}
func (l *lineLogger) Error(format string, args ...any) {}
func (l *lineLogger) Info(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestLogSink(t *testing.T) {
	logger := &lineLogger{}
	sink := activitymap.LogSink(logger, activitymap.WithChannel("audit"))

	err := sink.Record(context.Background(), accounts.ActivityEvent{
		EventType: accounts.ActivityEventAccountDeleted,
		AccountID: 7,
	})
	require.NoError(t, err)
	require.Len(t, logger.lines, 1)

	line := logger.lines[0]
	assert.True(t, strings.HasPrefix(line, "activity {"))
	assert.Contains(t, line, `"verb":"account.deleted"`)
	assert.Contains(t, line, `"channel":"audit"`)
	assert.Contains(t, line, `"object_id":"7"`)
}
