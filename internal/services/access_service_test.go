package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deviceguard/internal/models"
	"deviceguard/pkg/domain"
)

func TestCheckUnknownDevice(t *testing.T) {
	h := newHarness(t)
	st, err := h.access.Check(context.Background(), "new-device")
	require.NoError(t, err)
	require.Equal(t, domain.StatusUnregistered, st.Status)
	require.False(t, st.HasAccess)
	require.False(t, st.NeedsVerification)

	_, err = h.access.Check(context.Background(), " ")
	requireKind(t, err, domain.KindInvalidInput)
}

func TestCheckPendingDevice(t *testing.T) {
	h := newHarness(t)
	h.register(t, "d1", "+15550001111")
	st, err := h.access.Check(context.Background(), "d1")
	require.NoError(t, err)
	require.True(t, st.NeedsVerification)
	require.False(t, st.HasAccess)
	require.Equal(t, "********1111", st.Phone)
}

func TestBlockTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	states := map[string]func(t *testing.T, h *harness){
		"pending": func(t *testing.T, h *harness) { h.register(t, "d1", "+15550001111") },
		"verified": func(t *testing.T, h *harness) {
			code := h.register(t, "d1", "+15550001111")
			_, err := h.verify.Verify(ctx, domain.VerifyRequest{Fingerprint: "d1", Code: code})
			require.NoError(t, err)
		},
		"expired code": func(t *testing.T, h *harness) {
			h.register(t, "d1", "+15550001111")
			h.clock.Advance(time.Hour)
		},
		"attempts used": func(t *testing.T, h *harness) {
			code := h.register(t, "d1", "+15550001111")
			_, _ = h.verify.Verify(ctx, domain.VerifyRequest{Fingerprint: "d1", Code: wrongCode(code)})
		},
	}
	for name, setup := range states {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			setup(t, h)
			_, err := h.access.Block(ctx, "d1", "chargeback", "mod-1")
			require.NoError(t, err)

			st, err := h.access.Check(ctx, "d1")
			require.NoError(t, err)
			require.True(t, st.IsBlocked)
			require.Equal(t, domain.StatusBlocked, st.Status)
			require.Equal(t, "chargeback", st.BlockReason)
			require.False(t, st.HasAccess)
			require.False(t, st.NeedsVerification)
			require.Empty(t, st.PWAAccess)
		})
	}
}

func TestModerationBlockWinsOverLockoutReason(t *testing.T) {
	h := newHarness(t)
	b := &models.DeviceBinding{Fingerprint: "d1", Status: domain.StatusPendingVerification}
	until := h.clock.Now().Add(time.Minute)
	b.LockedUntil = &until
	st := AccessStatusOf(b, h.clock.Now())
	require.Equal(t, models.LockoutReason, st.BlockReason)

	reason := "fraud"
	b.IsBlocked = true
	b.BlockReason = &reason
	st = AccessStatusOf(b, h.clock.Now())
	require.Equal(t, "fraud", st.BlockReason)
}

func TestBlockUnblockAndList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "d1", "+15550001111")
	h.register(t, "d2", "+15550002222")

	_, err := h.access.Block(ctx, "ghost", "x", "mod")
	requireKind(t, err, domain.KindNotRegistered)
	_, err = h.access.Block(ctx, "d1", "", "mod")
	requireKind(t, err, domain.KindInvalidInput)

	b, err := h.access.Block(ctx, "d1", "abuse", "mod-1")
	require.NoError(t, err)
	require.Equal(t, "mod-1", *b.BlockedBy)

	list, err := h.access.ListBlocked(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "d1", list[0].Fingerprint)

	select {
	case text := <-h.alerts.ch:
		require.Contains(t, text, "blocked")
	case <-time.After(2 * time.Second):
		t.Fatal("block alert not sent")
	}

	_, err = h.access.Unblock(ctx, "d1", "mod-1")
	require.NoError(t, err)
	st, err := h.access.Check(ctx, "d1")
	require.NoError(t, err)
	require.False(t, st.IsBlocked)
	require.True(t, st.NeedsVerification)

	list, err = h.access.ListBlocked(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestUnblockClearsLockout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	code := h.register(t, "d1", "+15550001111")
	for i := 0; i < h.set.Protocol.MaxAttempts; i++ {
		_, _ = h.verify.Verify(ctx, domain.VerifyRequest{Fingerprint: "d1", Code: wrongCode(code)})
	}
	list, err := h.access.ListBlocked(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = h.access.Unblock(ctx, "d1", "mod-1")
	require.NoError(t, err)
	require.Nil(t, h.binding(t, "d1").LockedUntil)
}
