package security

import (
	"fmt"
	"time"
)

// AuditPublisher emits a "security.audit" event for each policy decision;
// it has the shape of AuditLog.Publish. orchestrator.New installs such a
// function that publishes on an *eventbus.Bus, so this package does not
// import eventbus directly.
type AuditPublisher func(entry AuditEntry)

// Config bundles the tunables spec.md §6 lists for the Security Service.
type Config struct {
	MaxRequestsPerHour float64
	SessionTTL         time.Duration
}

// Service exposes permission checks, rate limiting, risk scoring, session
// lifecycle, and audit logging as the "handler actions" of spec.md §4.4.
type Service struct {
	RateLimiter *RateLimiter
	Sessions    *SessionStore
	Blocked     *BlockList
	Audit       *AuditLog
}

func NewService(cfg Config) *Service {
	return &Service{
		RateLimiter: NewRateLimiter(cfg.MaxRequestsPerHour),
		Sessions:    NewSessionStore(cfg.SessionTTL),
		Blocked:     NewBlockList(),
		Audit:       NewAuditLog(),
	}
}

// ValidatePermissions checks that every scope required by a handler
// invocation is present in the context's allowed scopes, auditing the
// decision either way.
func (s *Service) ValidatePermissions(ctx *Context, resource string, required []string) error {
	allowed := ctx.HasAllScopes(required)
	s.Audit.Record(AuditEntry{
		SessionID:     ctx.SessionID,
		UserID:        ctx.UserID,
		OriginIP:      ctx.OriginIP,
		Action:        "validate_permissions",
		Resource:      resource,
		Allowed:       allowed,
		Details:       map[string]any{"required_scopes": required},
		Authenticated: ctx.IsAuthenticated,
		MFAVerified:   ctx.MFAVerified,
	})
	if !allowed {
		return ErrPermissionDenied
	}
	return nil
}

// CheckRateLimit enforces the blocked-ip check before token consumption,
// then consumes a token from the identifier's bucket.
func (s *Service) CheckRateLimit(ctx *Context) error {
	if ctx.OriginIP != "" && s.Blocked.IsBlocked(ctx.OriginIP) {
		s.Audit.Record(AuditEntry{
			SessionID: ctx.SessionID, UserID: ctx.UserID, OriginIP: ctx.OriginIP,
			Action: "check_rate_limit", Resource: "rate_limiter", Allowed: false,
			Details: map[string]any{"reason": "ip_blocked"},
		})
		return ErrIPBlocked
	}
	allowed, retryAfter, _ := s.RateLimiter.Allow(ctx.Identifier())
	s.Audit.Record(AuditEntry{
		SessionID: ctx.SessionID, UserID: ctx.UserID, OriginIP: ctx.OriginIP,
		Action: "check_rate_limit", Resource: "rate_limiter", Allowed: allowed,
		Details: map[string]any{"retry_after_seconds": retryAfter.Seconds()},
	})
	if !allowed {
		return fmt.Errorf("%w: retry after %.1fs", ErrRateLimited, retryAfter.Seconds())
	}
	return nil
}

// AssessRisk scores the request and audits it.
func (s *Service) AssessRisk(ctx *Context, requestedScopes []string) Assessment {
	assessment := AssessRisk(RiskInputs{
		RequestedScopes: requestedScopes,
		ThreatScore:     s.RateLimiter.ThreatScore(ctx.Identifier()),
		Authenticated:   ctx.IsAuthenticated,
		MFAVerified:     ctx.MFAVerified,
	})
	s.Audit.Record(AuditEntry{
		SessionID: ctx.SessionID, UserID: ctx.UserID, OriginIP: ctx.OriginIP,
		Action: "assess_risk", Resource: "orchestration_request", Allowed: true,
		Details: map[string]any{"score": assessment.Score, "level": assessment.Level},
	})
	return assessment
}

// CreateSession mints a session and audits the creation.
func (s *Service) CreateSession(userID string) (*Session, error) {
	sess, err := s.Sessions.CreateSession(userID)
	s.Audit.Record(AuditEntry{
		UserID: userID, Action: "create_session", Resource: "session",
		Allowed: err == nil,
	})
	return sess, err
}

// VerifySession validates a session id and audits the decision.
func (s *Service) VerifySession(id string) (*Session, error) {
	sess, err := s.Sessions.VerifySession(id)
	s.Audit.Record(AuditEntry{
		SessionID: id, Action: "verify_session", Resource: "session",
		Allowed: err == nil,
	})
	return sess, err
}

// BlockIP adds ip to the block list and audits it.
func (s *Service) BlockIP(ip string) {
	s.Blocked.Block(ip)
	s.Audit.Record(AuditEntry{OriginIP: ip, Action: "block_ip", Resource: "ip_blocklist", Allowed: true})
}

// UnblockIP removes ip from the block list and audits it.
func (s *Service) UnblockIP(ip string) {
	s.Blocked.Unblock(ip)
	s.Audit.Record(AuditEntry{OriginIP: ip, Action: "unblock_ip", Resource: "ip_blocklist", Allowed: true})
}
