package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chypto_bot/internal/metrics"
	"chypto_bot/internal/model"
	"chypto_bot/internal/repository"
	"chypto_bot/pkg/logger"

	"go.uber.org/zap"
)

const (
	DefaultRefereeReward  = 10000
	DefaultReferrerReward = 40000
)

type LedgerConfig struct {
	RefereeReward  int64  `mapstructure:"referee"`
	ReferrerReward int64  `mapstructure:"referrer"`
	BotUsername    string `mapstructure:"-"`
}

type LedgerService struct {
	repo AccountRepository
	cfg  LedgerConfig
	now  func() time.Time
}

// NewLedgerService fills unset rewards with the defaults. Configuration loading
// rejects zero rewards, so a zero here only comes from a zero-value LedgerConfig.
func NewLedgerService(repo AccountRepository, cfg LedgerConfig) *LedgerService {
	if cfg.RefereeReward <= 0 {
		cfg.RefereeReward = DefaultRefereeReward
	}
	if cfg.ReferrerReward <= 0 {
		cfg.ReferrerReward = DefaultReferrerReward
	}

	return &LedgerService{
		repo: repo,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ProcessStart handles one /start command. Business rejections are reported through
// the outcome kind; a returned error means nothing was committed for the referral
// and the call can be retried.
func (s *LedgerService) ProcessStart(ctx context.Context, userID, chatAddress, rawPayload string) (*model.Outcome, error) {
	start := time.Now()
	outcome, err := s.processStart(ctx, userID, chatAddress, rawPayload)
	metrics.ObserveStart(outcomeLabel(outcome, err), time.Since(start))
	return outcome, err
}

func (s *LedgerService) processStart(ctx context.Context, userID, chatAddress, rawPayload string) (*model.Outcome, error) {
	log := logger.Logger()

	userID = strings.TrimSpace(userID)
	chatAddress = strings.TrimSpace(chatAddress)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if chatAddress == "" {
		return nil, fmt.Errorf("%w: chat address is required", ErrValidation)
	}

	referrerID, hasCode := ParseReferralCode(rawPayload)
	if rawPayload != "" {
		log.Info("referral link received",
			zap.String("user_id", userID),
			zap.String("payload", rawPayload),
			zap.Bool("valid", hasCode))
	}
	if hasCode && referrerID == userID {
		log.Info("self referral ignored", zap.String("user_id", userID))
		referrerID, hasCode = "", false
	}

	account, err := s.repo.GetAccount(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, s.storeError("get account", err)
	}

	outcome := &model.Outcome{
		UserID:       userID,
		ChatAddress:  chatAddress,
		ReferralLink: ReferralLink(s.cfg.BotUsername, userID),
	}

	if account != nil && account.HasReferrer() {
		log.Info("duplicate referral attempt",
			zap.String("user_id", userID),
			zap.String("referred_by", *account.ReferredBy))
		outcome.Kind = model.OutcomeAlreadyReferred
		outcome.ReferrerID = *account.ReferredBy
		outcome.Balance = account.Balance
		return outcome, nil
	}

	if !hasCode {
		balance, err := s.ensureAccount(ctx, account, userID, chatAddress)
		if err != nil {
			return nil, err
		}
		outcome.Kind = model.OutcomeWelcome
		outcome.Balance = balance
		return outcome, nil
	}

	// The referrer is validated before anything referral related is written, so an
	// unknown referrer never leaves a half applied linkage behind.
	referrer, err := s.repo.GetAccount(ctx, referrerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, s.storeError("get referrer", err)
		}
		log.Info("invalid referrer",
			zap.String("user_id", userID),
			zap.String("referrer_id", referrerID))
		balance, err := s.ensureAccount(ctx, account, userID, chatAddress)
		if err != nil {
			return nil, err
		}
		outcome.Kind = model.OutcomeInvalidReferrer
		outcome.ReferrerID = referrerID
		outcome.Balance = balance
		return outcome, nil
	}

	prior, err := s.ensureAccount(ctx, account, userID, chatAddress)
	if err != nil {
		return nil, err
	}

	event := &model.ReferralEvent{
		RefereeID:      userID,
		ReferrerID:     referrerID,
		RefereeReward:  s.cfg.RefereeReward,
		ReferrerReward: s.cfg.ReferrerReward,
	}
	if err := s.applyReferral(ctx, event); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyLinked):
			log.Info("duplicate referral attempt",
				zap.String("user_id", userID),
				zap.String("referrer_id", referrerID))
			outcome.Kind = model.OutcomeAlreadyReferred
			return s.withCurrentBalance(ctx, outcome), nil
		case errors.Is(err, repository.ErrNotFound):
			log.Info("invalid referrer",
				zap.String("user_id", userID),
				zap.String("referrer_id", referrerID))
			outcome.Kind = model.OutcomeInvalidReferrer
			outcome.ReferrerID = referrerID
			return s.withCurrentBalance(ctx, outcome), nil
		default:
			return nil, err
		}
	}

	log.Info("referrer rewarded",
		zap.String("user_id", userID),
		zap.String("referrer_id", referrerID),
		zap.Int64("referee_reward", event.RefereeReward),
		zap.Int64("referrer_reward", event.ReferrerReward))

	outcome.Kind = model.OutcomeReferralApplied
	outcome.ReferrerID = referrerID
	outcome.Balance = prior + event.RefereeReward
	outcome = s.withCurrentBalance(ctx, outcome)
	outcome.Notification = &model.Notification{
		ChatAddress: referrer.ChatAddress,
		Kind:        model.MessageReferralUsed,
		Params: map[string]string{
			"referee_id": userID,
			"reward":     fmt.Sprintf("%d", event.ReferrerReward),
		},
	}

	return outcome, nil
}

func (s *LedgerService) applyReferral(ctx context.Context, event *model.ReferralEvent) error {
	if event.RefereeID == event.ReferrerID {
		logger.Logger().Error("self referral reached the ledger",
			zap.String("user_id", event.RefereeID))
		return fmt.Errorf("%w: referee %s refers itself", ErrInvariantViolation, event.RefereeID)
	}

	err := s.repo.ApplyReferral(ctx, event)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrAlreadyLinked), errors.Is(err, repository.ErrNotFound):
		return err
	case errors.Is(err, repository.ErrSelfReferral):
		logger.Logger().Error("store rejected self referral",
			zap.String("user_id", event.RefereeID))
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	default:
		return s.storeError("apply referral", err)
	}
}

func (s *LedgerService) ensureAccount(ctx context.Context, account *model.Account, userID, chatAddress string) (int64, error) {
	if account != nil {
		return account.Balance, nil
	}

	created, err := s.repo.CreateAccountIfAbsent(ctx, &model.Account{
		ID:          userID,
		ChatAddress: chatAddress,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return 0, s.storeError("create account", err)
	}
	if created {
		logger.Logger().Info("new user created", zap.String("user_id", userID))
	}

	return 0, nil
}

// withCurrentBalance re-reads the balance for the reply; a failed read only costs
// the balance figure since the event outcome is already settled.
func (s *LedgerService) withCurrentBalance(ctx context.Context, outcome *model.Outcome) *model.Outcome {
	account, err := s.repo.GetAccount(ctx, outcome.UserID)
	if err != nil {
		logger.Logger().Warn("failed to reload account",
			zap.String("user_id", outcome.UserID),
			zap.Error(err))
		return outcome
	}
	outcome.Balance = account.Balance
	if outcome.Kind == model.OutcomeAlreadyReferred && account.ReferredBy != nil {
		outcome.ReferrerID = *account.ReferredBy
	}
	return outcome
}

func (s *LedgerService) storeError(op string, err error) error {
	logger.Logger().Error("account store failure", zap.String("op", op), zap.Error(err))
	metrics.StoreError(op)
	return fmt.Errorf("%w: %s: %w", ErrTransientStore, op, err)
}

func outcomeLabel(outcome *model.Outcome, err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case err != nil:
		return "store_error"
	case outcome == nil:
		return "unknown"
	default:
		return string(outcome.Kind)
	}
}
