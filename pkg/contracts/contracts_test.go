package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessRequestExpired(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	exp := at.Add(time.Hour)

	approved := &AccessRequest{Status: AccessApproved, RequestedAt: at, ExpiresAt: &exp}
	assert.False(t, approved.Expired(exp.Add(-time.Nanosecond), 0))
	assert.True(t, approved.Expired(exp, 0), "expiry instant is exclusive")

	pending := &AccessRequest{Status: AccessPending, RequestedAt: at}
	assert.False(t, pending.Expired(at.Add(48*time.Hour), 0), "zero TTL never expires")
	assert.False(t, pending.Expired(at.Add(71*time.Hour), 72*time.Hour))
	assert.True(t, pending.Expired(at.Add(72*time.Hour), 72*time.Hour))

	denied := &AccessRequest{Status: AccessDenied, RequestedAt: at, ExpiresAt: &exp}
	assert.False(t, denied.Expired(exp.Add(time.Hour), time.Minute))
}

func TestCustodyEventBefore(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := &CustodyEvent{Timestamp: t0, Sequence: 2, Index: 0}
	b := &CustodyEvent{Timestamp: t0.Add(time.Second), Sequence: 1, Index: 0}
	c := &CustodyEvent{Timestamp: t0, Sequence: 2, Index: 1}
	d := &CustodyEvent{Timestamp: t0, Sequence: 3, Index: 0}

	assert.True(t, a.Before(b), "timestamp wins over sequence")
	assert.True(t, a.Before(c))
	assert.True(t, c.Before(d))
	assert.False(t, c.Before(a))
	assert.False(t, a.Before(a))
}

func TestClonesAreIndependent(t *testing.T) {
	e := &CustodyEvent{ID: "EVT-1-1", Details: map[string]any{"tag": "x"}}
	ec := e.Clone()
	ec.Details["tag"] = "y"
	assert.Equal(t, "x", e.Details["tag"])

	now := time.Now()
	ev := &Evidence{ID: "EV-1", Tags: []string{"a"}, LastVerifiedAt: &now}
	evc := ev.Clone()
	evc.Tags[0] = "b"
	*evc.LastVerifiedAt = now.Add(time.Hour)
	assert.Equal(t, []string{"a"}, ev.Tags)
	assert.True(t, ev.LastVerifiedAt.Equal(now))
	assert.True(t, ev.HasTag("a"))
	assert.False(t, ev.HasTag("b"))

	var nilEv *Evidence
	require.Nil(t, nilEv.Clone())
}

func TestAllStatusesLifecycleOrder(t *testing.T) {
	all := AllStatuses()
	require.Len(t, all, 9)
	assert.Equal(t, StatusRegistered, all[0])
	assert.Equal(t, StatusDisposed, all[len(all)-1])
}
