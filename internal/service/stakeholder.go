package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/auth"
	"github.com/iliyamo/pharmatrace/internal/integrity"
	"github.com/iliyamo/pharmatrace/internal/ledger"
	"github.com/iliyamo/pharmatrace/internal/model"
	"github.com/iliyamo/pharmatrace/internal/repository"
)

// StakeholderService administers stakeholder records.
type StakeholderService struct {
	accounts AccountStore
	ledger   *ledger.Gateway
	profiles *auth.Profiles
	engine   *integrity.Engine
	log      *zap.Logger
	now      func() time.Time
}

// NewStakeholderService wires the service. accounts receives the initial
// credential of stakeholders registered by a regulator.
func NewStakeholderService(accounts AccountStore, gw *ledger.Gateway, profiles *auth.Profiles, engine *integrity.Engine, log *zap.Logger) *StakeholderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &StakeholderService{
		accounts: accounts,
		ledger:   gw,
		profiles: profiles,
		engine:   engine,
		log:      log.Named("stakeholders"),
		now:      time.Now,
	}
}

// RegisterStakeholderInput is a regulator's registration request. Password is
// optional; when set the stakeholder also gets a login account with it.
type RegisterStakeholderInput struct {
	Address  string
	Name     string
	License  string
	Role     string
	Password string
}

// RegisterByAdmin records a stakeholder on the ledger. Any role, Regulator
// included, may be registered this way. With a password the login account is
// created first and removed again if the ledger definitively rejects the
// registration.
func (s *StakeholderService) RegisterByAdmin(ctx context.Context, actor string, in RegisterStakeholderInput) (ledger.TxResult, error) {
	addr, err := model.NormalizeAddress(in.Address)
	if err != nil {
		return ledger.TxResult{}, apperror.Wrap(apperror.CodeValidation, "invalid address", err)
	}
	role, err := model.ParseRole(in.Role)
	if err != nil {
		return ledger.TxResult{}, apperror.Wrap(apperror.CodeValidation, "invalid role", err)
	}
	name, license := strings.TrimSpace(in.Name), strings.TrimSpace(in.License)
	if name == "" || license == "" {
		return ledger.TxResult{}, apperror.New(apperror.CodeValidation, "name and license are required")
	}
	withAccount := in.Password != ""
	if withAccount {
		if len(in.Password) < minPasswordLen {
			return ledger.TxResult{}, apperror.New(apperror.CodeValidation, "password must be at least 8 characters")
		}
		if err := s.accounts.Create(ctx, addr, in.Password, string(role)); err != nil {
			if errors.Is(err, repository.ErrAccountExists) {
				return ledger.TxResult{}, apperror.ErrStakeholderAlreadyExists
			}
			return ledger.TxResult{}, apperror.Wrap(apperror.CodeInternal, "create account", err)
		}
	}
	tx, err := s.ledger.RegisterStakeholder(ctx, addr, name, license, role)
	if err != nil {
		if withAccount {
			rollbackAccount(ctx, s.accounts, addr, err, s.log)
		}
		return ledger.TxResult{}, err
	}
	s.profiles.Invalidate(ctx, addr)
	s.log.Info("stakeholder registered", zap.String("address", addr), zap.String("role", string(role)),
		zap.Bool("account", withAccount), zap.String("by", actor))
	return tx, nil
}

// SetVerified marks a stakeholder verified and drops its cached profile so
// the new flag is seen on the next check.
func (s *StakeholderService) SetVerified(ctx context.Context, actor, address string) (ledger.TxResult, error) {
	addr, err := model.NormalizeAddress(address)
	if err != nil {
		return ledger.TxResult{}, apperror.Wrap(apperror.CodeValidation, "invalid address", err)
	}
	tx, err := s.ledger.VerifyStakeholder(ctx, addr)
	if err != nil {
		return ledger.TxResult{}, err
	}
	s.profiles.Invalidate(ctx, addr)
	s.log.Info("stakeholder verified", zap.String("address", addr), zap.String("by", actor))
	return tx, nil
}

// Get returns a stakeholder record through the profile cache.
func (s *StakeholderService) Get(ctx context.Context, address string) (model.Stakeholder, error) {
	addr, err := model.NormalizeAddress(address)
	if err != nil {
		return model.Stakeholder{}, apperror.Wrap(apperror.CodeValidation, "invalid address", err)
	}
	return s.profiles.Get(ctx, addr)
}

// StakeholderQR is the identity payload of a stakeholder with its rendered
// symbol as a PNG data URL.
type StakeholderQR struct {
	Payload integrity.QRPayload `json:"payload"`
	QRCode  string              `json:"qrCode"`
}

// QR builds the identity payload of a stakeholder and renders it.
func (s *StakeholderService) QR(ctx context.Context, address string) (StakeholderQR, error) {
	sh, err := s.Get(ctx, address)
	if err != nil {
		return StakeholderQR{}, err
	}
	p, err := s.engine.StakeholderPayload(sh, s.now())
	if err != nil {
		return StakeholderQR{}, err
	}
	png, err := integrity.RenderDataURL(p, integrity.DefaultQRSize)
	if err != nil {
		return StakeholderQR{}, apperror.Wrap(apperror.CodeInternal, "render qr code", err)
	}
	return StakeholderQR{Payload: p, QRCode: png}, nil
}
