package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePermissions_DeniesMissingScope(t *testing.T) {
	svc := NewService(Config{MaxRequestsPerHour: 100, SessionTTL: time.Hour})
	ctx := &Context{AllowedScopes: []string{"read"}}
	err := svc.ValidatePermissions(ctx, "graphs", []string{"read", "write"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestValidatePermissions_AllowsFullScopeSet(t *testing.T) {
	svc := NewService(Config{MaxRequestsPerHour: 100, SessionTTL: time.Hour})
	ctx := &Context{AllowedScopes: []string{"read", "write"}}
	err := svc.ValidatePermissions(ctx, "graphs", []string{"read", "write"})
	assert.NoError(t, err)
}

func TestCheckRateLimit_BlockedIPTakesPrecedence(t *testing.T) {
	svc := NewService(Config{MaxRequestsPerHour: 3600, SessionTTL: time.Hour})
	svc.BlockIP("10.0.0.1")
	ctx := &Context{OriginIP: "10.0.0.1"}
	err := svc.CheckRateLimit(ctx)
	assert.ErrorIs(t, err, ErrIPBlocked)
}

func TestCheckRateLimit_DeniesOverCapacity(t *testing.T) {
	svc := NewService(Config{MaxRequestsPerHour: 1, SessionTTL: time.Hour})
	ctx := &Context{UserID: "u1"}
	require.NoError(t, svc.CheckRateLimit(ctx))
	err := svc.CheckRateLimit(ctx)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAssessRisk_AdminDeleteUnauthenticatedIsHigh(t *testing.T) {
	a := AssessRisk(RiskInputs{RequestedScopes: []string{"ADMIN", "DELETE"}, Authenticated: false})
	assert.InDelta(t, 0.7, a.Score, 1e-9)
	assert.Equal(t, "HIGH", string(a.Level))
}

func TestAssessRisk_LowForAuthenticatedMFAReadOnly(t *testing.T) {
	a := AssessRisk(RiskInputs{RequestedScopes: []string{"READ"}, Authenticated: true, MFAVerified: true})
	assert.Equal(t, "LOW", string(a.Level))
	assert.False(t, a.RequiresApproval)
}

func TestSessionLifecycle_ExpiredSessionIsEvicted(t *testing.T) {
	store := NewSessionStore(10 * time.Millisecond)
	sess, err := store.CreateSession("u1")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = store.VerifySession(sess.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = store.VerifySession(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPasswordHash_RoundTrips(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	ok, err := VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlockList_ToggleReflectsImmediately(t *testing.T) {
	bl := NewBlockList()
	assert.False(t, bl.IsBlocked("1.2.3.4"))
	bl.Block("1.2.3.4")
	assert.True(t, bl.IsBlocked("1.2.3.4"))
	bl.Unblock("1.2.3.4")
	assert.False(t, bl.IsBlocked("1.2.3.4"))
}
