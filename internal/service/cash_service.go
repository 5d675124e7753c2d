package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/cache"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type CashService interface {
	Open(ctx context.Context, caller Caller, req dto.OpenSessionRequest) (*dto.CashSessionResponse, error)
	RegisterMovement(ctx context.Context, caller Caller, sessionID uuid.UUID, req dto.CashMovementRequest) (*dto.CashMovementResponse, error)
	// Reconcile is read-only and may be called any number of times while the
	// session is open.
	Reconcile(ctx context.Context, caller Caller, sessionID uuid.UUID) (*dto.ReconciliationResponse, error)
	Close(ctx context.Context, caller Caller, sessionID uuid.UUID, req dto.CloseSessionRequest) (*dto.CloseSessionResponse, error)
	GetActive(ctx context.Context, caller Caller) (*dto.CashSessionResponse, error)
	History(ctx context.Context, caller Caller, page, limit int) (*dto.SessionHistoryResponse, error)
}

type cashService struct {
	tx       repository.TxManager
	cash     repository.CashRepository
	sales    repository.SaleRepository
	cache    cache.Cache
	cacheTTL time.Duration
	now      func() time.Time
}

func NewCashService(
	tx repository.TxManager,
	cash repository.CashRepository,
	sales repository.SaleRepository,
	c cache.Cache,
	cacheTTL time.Duration,
) CashService {
	if c == nil || cacheTTL <= 0 {
		c = cache.Noop{}
	}
	return &cashService{tx: tx, cash: cash, sales: sales, cache: c, cacheTTL: cacheTTL, now: time.Now}
}

// reconcileGenTTL outlives any cached figure so an expired generation never
// resurrects an entry written under an older one.
const reconcileGenTTL = 24 * time.Hour

func reconcileCacheKey(tenantID, sessionID uuid.UUID, gen string) string {
	return fmt.Sprintf("reconcile:%s:%s:%s", tenantID, sessionID, gen)
}

func reconcileGenKey(tenantID, sessionID uuid.UUID) string {
	return fmt.Sprintf("reconcile-gen:%s:%s", tenantID, sessionID)
}

// invalidateReconciliation bumps the session's cache generation. A figure
// computed from reads that raced the bump is stored under the old generation
// and never served.
func invalidateReconciliation(ctx context.Context, c cache.Cache, tenantID, sessionID uuid.UUID) {
	if err := c.Set(ctx, reconcileGenKey(tenantID, sessionID), uuid.NewString(), reconcileGenTTL); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("reconciliation cache invalidation failed")
	}
}

// ── Open ──────────────────────────────────────────────────────────────────────

func (s *cashService) Open(ctx context.Context, caller Caller, req dto.OpenSessionRequest) (*dto.CashSessionResponse, error) {
	if req.OpeningBalance.IsNegative() {
		return nil, invalid("opening_balance", "must not be negative")
	}
	if existing, err := s.cash.FindOpenByOperator(ctx, caller.TenantID, caller.OperatorID); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: operator already has an open cash session", ErrConflict)
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	session := &model.CashSession{
		ID:             uuid.New(),
		TenantID:       caller.TenantID,
		OperatorID:     caller.OperatorID,
		OpeningBalance: req.OpeningBalance.Round(moneyPlaces),
		Status:         model.SessionOpen,
		OpenedAt:       s.now(),
	}
	if err := s.cash.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("operator_id", caller.OperatorID.String()).
		Str("opening_balance", session.OpeningBalance.StringFixed(2)).
		Msg("cash session opened")
	resp := sessionToResponse(session)
	return &resp, nil
}

// ── RegisterMovement ─────────────────────────────────────────────────────────
// Manual deposit or withdrawal. Movements are immutable.

func (s *cashService) RegisterMovement(ctx context.Context, caller Caller, sessionID uuid.UUID, req dto.CashMovementRequest) (*dto.CashMovementResponse, error) {
	if req.Kind != model.CashDeposit && req.Kind != model.CashWithdrawal {
		return nil, invalid("kind", "must be deposit or withdrawal")
	}
	method := req.Method
	if method == "" {
		method = model.PaymentCash
	}
	if !model.IsPaymentMethod(method) {
		return nil, invalid("method", "unknown payment method %q", method)
	}
	amount := req.Amount.Round(moneyPlaces)
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}
	if len(strings.TrimSpace(req.Description)) == 0 {
		return nil, invalid("description", "is required")
	}

	var mov *model.CashMovement
	err := s.tx.Run(ctx, func(tx *gorm.DB) error {
		session, err := s.cash.LockSession(ctx, tx, caller.TenantID, sessionID, repository.LockShare)
		if err != nil {
			return err
		}
		if err := authorizeSession(caller, session); err != nil {
			return err
		}
		if !session.IsOpen() {
			return &SessionClosedError{OperatorID: session.OperatorID, SessionID: &session.ID}
		}
		mov = &model.CashMovement{
			ID:          uuid.New(),
			SessionID:   session.ID,
			TenantID:    caller.TenantID,
			Kind:        req.Kind,
			Method:      method,
			Amount:      amount,
			Description: strings.TrimSpace(req.Description),
			ActorID:     caller.OperatorID,
			CreatedAt:   s.now(),
		}
		return s.cash.CreateMovement(ctx, tx, mov)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, caller.TenantID, sessionID)
	resp := movementToResponse(mov)
	return &resp, nil
}

// ── Reconcile ─────────────────────────────────────────────────────────────────

func (s *cashService) Reconcile(ctx context.Context, caller Caller, sessionID uuid.UUID) (*dto.ReconciliationResponse, error) {
	session, err := s.cash.FindSessionByID(ctx, caller.TenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSession(caller, session); err != nil {
		return nil, err
	}

	// The generation is read before the sales so a concurrent invalidation
	// always lands after it.
	var gen string
	if _, err := s.cache.Get(ctx, reconcileGenKey(caller.TenantID, sessionID), &gen); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("reconciliation cache read failed")
	}
	key := reconcileCacheKey(caller.TenantID, sessionID, gen)

	var cached dto.ReconciliationResponse
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("reconciliation cache read failed")
	} else if ok {
		return &cached, nil
	}

	sales, err := s.sales.ListForSession(ctx, nil, session)
	if err != nil {
		return nil, err
	}
	movements, err := s.cash.ListMovements(ctx, nil, session.ID)
	if err != nil {
		return nil, err
	}

	resp := reconciliationToResponse(session, Reconcile(session, sales, movements))
	if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("reconciliation cache write failed")
	}
	return &resp, nil
}

// ── Close ─────────────────────────────────────────────────────────────────────
// Blind count: the divergence is computed only after the declaration is
// received. A critical divergence needs notes. OPEN → CLOSED is terminal.

func (s *cashService) Close(ctx context.Context, caller Caller, sessionID uuid.UUID, req dto.CloseSessionRequest) (*dto.CloseSessionResponse, error) {
	if req.DeclaredCount.IsNegative() {
		return nil, invalid("declared_count", "must not be negative")
	}
	declared := req.DeclaredCount.Round(moneyPlaces)

	var (
		session *model.CashSession
		recon   *Reconciliation
	)
	err := s.tx.Run(ctx, func(tx *gorm.DB) error {
		var err error
		session, err = s.cash.LockSession(ctx, tx, caller.TenantID, sessionID, repository.LockUpdate)
		if err != nil {
			return err
		}
		if err := authorizeSession(caller, session); err != nil {
			return err
		}
		if !session.IsOpen() {
			return &SessionClosedError{OperatorID: session.OperatorID, SessionID: &session.ID}
		}

		sales, err := s.sales.ListForSession(ctx, tx, session)
		if err != nil {
			return err
		}
		movements, err := s.cash.ListMovements(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		recon = Reconcile(session, sales, movements)

		div := ComputeDivergence(declared, recon.TheoreticalCash)
		notes := req.Notes
		if notes != nil {
			trimmed := strings.TrimSpace(*notes)
			notes = &trimmed
		}
		if div.Classification == model.DivergenceCritical && (notes == nil || *notes == "") {
			return invalid("notes", "critical divergence of %s requires notes", div.Amount.StringFixed(2))
		}

		closedAt := s.now()
		theoretical := recon.TheoreticalCash
		class := div.Classification
		session.DeclaredCount = &declared
		session.TheoreticalCash = &theoretical
		session.Divergence = &div.Amount
		session.DivergencePct = &div.Percent
		session.DivergenceClass = &class
		session.Notes = notes
		session.ClosedAt = &closedAt
		session.Status = model.SessionClosed
		return s.cash.CloseSession(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, caller.TenantID, sessionID)
	ev := log.Info()
	if *session.DivergenceClass != model.DivergenceNormal {
		ev = log.Warn()
	}
	ev.Str("session_id", session.ID.String()).
		Str("divergence", session.Divergence.StringFixed(2)).
		Str("classification", *session.DivergenceClass).
		Msg("cash session closed")

	return &dto.CloseSessionResponse{
		Session:        sessionToResponse(session),
		Reconciliation: reconciliationToResponse(session, recon),
	}, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *cashService) GetActive(ctx context.Context, caller Caller) (*dto.CashSessionResponse, error) {
	session, err := s.cash.FindOpenByOperator(ctx, caller.TenantID, caller.OperatorID)
	if err != nil {
		return nil, err
	}
	resp := sessionToResponse(session)
	return &resp, nil
}

func (s *cashService) History(ctx context.Context, caller Caller, page, limit int) (*dto.SessionHistoryResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	sessions, total, err := s.cash.ListSessions(ctx, caller.TenantID, page, limit)
	if err != nil {
		return nil, err
	}
	data := make([]dto.CashSessionResponse, 0, len(sessions))
	for i := range sessions {
		data = append(data, sessionToResponse(&sessions[i]))
	}
	return &dto.SessionHistoryResponse{Data: data, Total: total, Page: page, Limit: limit}, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// authorizeSession lets standard operators touch only their own session.
// Someone else's session is reported as not found.
func authorizeSession(caller Caller, session *model.CashSession) error {
	if caller.Elevated() || session.OperatorID == caller.OperatorID {
		return nil
	}
	return ErrNotFound
}

func (s *cashService) invalidate(ctx context.Context, tenantID, sessionID uuid.UUID) {
	invalidateReconciliation(ctx, s.cache, tenantID, sessionID)
}

func sessionToResponse(s *model.CashSession) dto.CashSessionResponse {
	resp := dto.CashSessionResponse{
		ID:              s.ID.String(),
		OperatorID:      s.OperatorID.String(),
		OpeningBalance:  s.OpeningBalance,
		Status:          s.Status,
		OpenedAt:        s.OpenedAt.UTC().Format(time.RFC3339),
		DeclaredCount:   s.DeclaredCount,
		TheoreticalCash: s.TheoreticalCash,
		Notes:           s.Notes,
	}
	if s.Divergence != nil && s.DivergencePct != nil && s.DivergenceClass != nil {
		resp.Divergence = &dto.DivergenceResponse{
			Amount:         *s.Divergence,
			Percent:        *s.DivergencePct,
			Classification: *s.DivergenceClass,
		}
	}
	if s.ClosedAt != nil {
		t := s.ClosedAt.UTC().Format(time.RFC3339)
		resp.ClosedAt = &t
	}
	return resp
}

func movementToResponse(m *model.CashMovement) dto.CashMovementResponse {
	return dto.CashMovementResponse{
		ID:          m.ID.String(),
		SessionID:   m.SessionID.String(),
		Kind:        m.Kind,
		Method:      m.Method,
		Amount:      m.Amount,
		Description: m.Description,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
	}
}
