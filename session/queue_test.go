package session

import (
	"testing"

	"github.com/srg/voltlog/internal/ringchan"
	"github.com/srg/voltlog/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueNotificationCopiesPayload(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	queue := ringchan.New[[]byte](4)

	buf := []byte("3ff")
	enqueueNotification(queue, helper.Logger, buf)
	buf[0] = 'x'

	got := <-queue.C()
	assert.Equal(t, []byte("3ff"), got)
	assert.Contains(t, helper.LogOutput.String(), "Received notification")
}

func TestEnqueueNotificationSeparatesOverwritesFromLateArrivals(t *testing.T) {
	helper := testutils.NewTestHelper(t)
	queue := ringchan.New[[]byte](1)

	enqueueNotification(queue, helper.Logger, []byte("001"))
	assert.NotContains(t, helper.LogOutput.String(), "overwritten")

	enqueueNotification(queue, helper.Logger, []byte("002"))
	logs := helper.LogOutput.String()
	assert.Contains(t, logs, "Notification queue full, oldest payload overwritten")
	assert.Contains(t, logs, "overwritten=1")
	assert.NotContains(t, logs, "discarded")

	queue.Close()
	helper.LogOutput.Reset()
	enqueueNotification(queue, helper.Logger, []byte("003"))
	logs = helper.LogOutput.String()
	assert.Contains(t, logs, "Notification after acquisition ended, discarded")
	assert.NotContains(t, logs, "queue full")

	m := queue.GetMetrics()
	assert.Equal(t, int64(1), m.Overwritten)
	assert.Equal(t, int64(1), m.Errors)

	remaining, ok := <-queue.C()
	require.True(t, ok)
	assert.Equal(t, []byte("002"), remaining)
}
