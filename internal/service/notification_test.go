package service

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotifier(t *testing.T) (*NotificationService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)}
	n := NewNotificationService(store.NewMemoryStore(), testMetrics, slog.Default())
	n.now = clock.now
	return n, clock
}

func testNotification(key string) domain.Notification {
	return domain.Notification{
		ID:        uuid.New().String(),
		Key:       key,
		Type:      domain.NotificationOverdueInvoices,
		Priority:  domain.PriorityWarning,
		Title:     "Overdue invoices",
		Message:   "You have 3 overdue invoice(s)",
		Timestamp: time.Now(),
	}
}

func TestInsertDeduplicatesByKey(t *testing.T) {
	n, _ := newNotifier(t)
	ctx := t.Context()

	require.NoError(t, n.Insert(ctx, "user_1", testNotification("k1")))
	require.NoError(t, n.Insert(ctx, "user_1", testNotification("k1")))
	require.NoError(t, n.Insert(ctx, "user_1", testNotification("k2")))

	list, unread, err := n.List(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, unread)
	// Newest first.
	assert.Equal(t, "k2", list[0].Key)
}

func TestInsertTruncatesToMax(t *testing.T) {
	n, _ := newNotifier(t)
	ctx := t.Context()

	for i := 0; i < domain.MaxNotifications+10; i++ {
		require.NoError(t, n.Insert(ctx, "user_1", testNotification(fmt.Sprintf("k%d", i))))
	}

	list, unread, err := n.List(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, list, domain.MaxNotifications)
	assert.Equal(t, domain.MaxNotifications, unread)
	// The newest survives, the oldest fell off.
	assert.Equal(t, fmt.Sprintf("k%d", domain.MaxNotifications+9), list[0].Key)
}

func TestPointEventsAlwaysInsert(t *testing.T) {
	n, clock := newNotifier(t)
	ctx := t.Context()
	inv := &domain.Invoice{ID: "inv_1", InvoiceNumber: "INV-001"}

	// Three rapid failures produce three notifications: point-event keys
	// embed the event instant, so they never collapse.
	for i := 0; i < 3; i++ {
		n.NotifyEmailSendFailed(ctx, "user_1", inv)
		clock.advance(time.Millisecond)
	}

	list, _, err := n.List(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestUnreadInvariant(t *testing.T) {
	n, _ := newNotifier(t)
	ctx := t.Context()

	for i := 0; i < 5; i++ {
		require.NoError(t, n.Insert(ctx, "user_1", testNotification(fmt.Sprintf("k%d", i))))
	}

	list, unread, err := n.List(ctx, "user_1")
	require.NoError(t, err)
	require.Equal(t, 5, unread)

	// Mark two read.
	unread, err = n.MarkRead(ctx, "user_1", list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 4, unread)
	unread, err = n.MarkRead(ctx, "user_1", list[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	// Delete an unread one.
	unread, err = n.Delete(ctx, "user_1", list[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	// Delete a read one; unread count unchanged.
	unread, err = n.Delete(ctx, "user_1", list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	// The derived count always matches a fresh scan.
	current, recount, err := n.List(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, UnreadCount(current), recount)
	assert.Equal(t, 2, recount)

	require.NoError(t, n.MarkAllRead(ctx, "user_1"))
	_, recount, err = n.List(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 0, recount)
}

func TestDeleteTombstonesKey(t *testing.T) {
	n, _ := newNotifier(t)
	ctx := t.Context()

	require.NoError(t, n.Insert(ctx, "user_1", testNotification("k1")))
	list, _, err := n.List(ctx, "user_1")
	require.NoError(t, err)

	_, err = n.Delete(ctx, "user_1", list[0].ID)
	require.NoError(t, err)

	// Reinserting the same key is silently suppressed.
	require.NoError(t, n.Insert(ctx, "user_1", testNotification("k1")))
	list, _, err = n.List(ctx, "user_1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClearAllTombstonesEveryKey(t *testing.T) {
	n, _ := newNotifier(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		require.NoError(t, n.Insert(ctx, "user_1", testNotification(fmt.Sprintf("k%d", i))))
	}
	require.NoError(t, n.ClearAll(ctx, "user_1"))

	for i := 0; i < 3; i++ {
		require.NoError(t, n.Insert(ctx, "user_1", testNotification(fmt.Sprintf("k%d", i))))
	}
	list, unread, err := n.List(ctx, "user_1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, unread)
}

func TestTombstonesExpireAfterRetention(t *testing.T) {
	n, clock := newNotifier(t)
	ctx := t.Context()

	require.NoError(t, n.Insert(ctx, "user_1", testNotification("k1")))
	list, _, err := n.List(ctx, "user_1")
	require.NoError(t, err)
	_, err = n.Delete(ctx, "user_1", list[0].ID)
	require.NoError(t, err)

	// Two days later the tombstone is pruned on the next write and the
	// key inserts again.
	clock.advance(tombstoneRetention + time.Hour)
	require.NoError(t, n.Insert(ctx, "user_1", testNotification("k2")))
	list, _, err = n.List(ctx, "user_1")
	require.NoError(t, err)
	_, err = n.Delete(ctx, "user_1", list[0].ID)
	require.NoError(t, err)

	require.NoError(t, n.Insert(ctx, "user_1", testNotification("k1")))
	list, _, err = n.List(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "k1", list[0].Key)
}

func TestDigestKeyDerivation(t *testing.T) {
	// Same type, date, scope and count: same key.
	a := digestKey(domain.NotificationOverdueInvoices, "2025-06-10", ScopeOwn, 3)
	b := digestKey(domain.NotificationOverdueInvoices, "2025-06-10", ScopeOwn, 3)
	assert.Equal(t, a, b)

	// Any axis changing changes the key.
	assert.NotEqual(t, a, digestKey(domain.NotificationOverdueInvoices, "2025-06-11", ScopeOwn, 3))
	assert.NotEqual(t, a, digestKey(domain.NotificationOverdueInvoices, "2025-06-10", ScopeAll, 3))
	assert.NotEqual(t, a, digestKey(domain.NotificationOverdueInvoices, "2025-06-10", ScopeOwn, 4))
	assert.NotEqual(t, a, digestKey(domain.NotificationPendingInvestigation, "2025-06-10", ScopeOwn, 3))
}
