// Package service orchestrates the domain operations behind the HTTP surface.
// Role checks happen before a service is called; services enforce input rules
// and ownership, and translate storage errors into the apperror taxonomy.
package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/auth"
	"github.com/iliyamo/pharmatrace/internal/config"
	"github.com/iliyamo/pharmatrace/internal/ledger"
	"github.com/iliyamo/pharmatrace/internal/model"
	"github.com/iliyamo/pharmatrace/internal/repository"
)

const minPasswordLen = 8

// AccountStore keeps login credentials.
type AccountStore interface {
	Create(ctx context.Context, address, password, role string) error
	GetByAddress(ctx context.Context, address string) (repository.Account, error)
	Delete(ctx context.Context, address string) error
}

// AuthService handles self-registration, login, refresh and logout.
type AuthService struct {
	accounts AccountStore
	ledger   *ledger.Gateway
	profiles *auth.Profiles
	tokens   *auth.Manager
	log      *zap.Logger
}

// NewAuthService wires the service. A nil logger is replaced by a no-op one.
func NewAuthService(accounts AccountStore, gw *ledger.Gateway, profiles *auth.Profiles, tokens *auth.Manager, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{accounts: accounts, ledger: gw, profiles: profiles, tokens: tokens, log: log.Named("auth")}
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Address  string
	Password string
	Name     string
	License  string
	Role     string
}

type RegisterResult struct {
	Address  string     `json:"address"`
	Role     model.Role `json:"role"`
	Verified bool       `json:"verified"`
	TxRef    string     `json:"txRef"`
}

// Register creates a login account and records the stakeholder on the ledger
// as unverified. Regulators cannot self-register.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	addr, err := model.NormalizeAddress(in.Address)
	if err != nil {
		return RegisterResult{}, apperror.Wrap(apperror.CodeValidation, "invalid address", err)
	}
	role, err := model.ParseRole(in.Role)
	if err != nil {
		return RegisterResult{}, apperror.Wrap(apperror.CodeValidation, "invalid role", err)
	}
	if role == model.RoleRegulator {
		return RegisterResult{}, apperror.New(apperror.CodeForbidden, "regulators are registered by an existing regulator")
	}
	if len(in.Password) < minPasswordLen {
		return RegisterResult{}, apperror.New(apperror.CodeValidation, "password must be at least 8 characters")
	}
	name, license := strings.TrimSpace(in.Name), strings.TrimSpace(in.License)
	if name == "" || license == "" {
		return RegisterResult{}, apperror.New(apperror.CodeValidation, "name and license are required")
	}

	if err := s.accounts.Create(ctx, addr, in.Password, string(role)); err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			return RegisterResult{}, apperror.ErrStakeholderAlreadyExists
		}
		return RegisterResult{}, apperror.Wrap(apperror.CodeInternal, "create account", err)
	}

	tx, err := s.ledger.RegisterStakeholder(ctx, addr, name, license, role)
	if err != nil {
		rollbackAccount(ctx, s.accounts, addr, err, s.log)
		return RegisterResult{}, err
	}
	s.profiles.Invalidate(ctx, addr)
	s.log.Info("stakeholder self-registered", zap.String("address", addr), zap.String("role", string(role)))
	return RegisterResult{Address: addr, Role: role, TxRef: tx.TxRef}, nil
}

// rollbackAccount removes an account created ahead of a ledger registration
// that failed. When the ledger outcome is unknown the registration may still
// commit, so the account is kept.
func rollbackAccount(ctx context.Context, accounts AccountStore, addr string, cause error, log *zap.Logger) {
	if apperror.CodeOf(cause) == apperror.CodeLedgerOutcomeUnknown {
		log.Warn("ledger outcome unknown, keeping account", zap.String("address", addr))
		return
	}
	if err := accounts.Delete(ctx, addr); err != nil {
		log.Error("could not roll back account after ledger rejection",
			zap.String("address", addr), zap.Error(err))
	}
}

// Bootstrap makes sure the configured regulator exists on the ledger, is
// verified and has a login account. It is safe to run on every start; an
// existing account keeps its password.
func (s *AuthService) Bootstrap(ctx context.Context, cfg config.BootstrapConfig) error {
	if !cfg.Enabled() {
		return nil
	}
	addr, err := model.NormalizeAddress(cfg.Address)
	if err != nil {
		return apperror.Wrap(apperror.CodeValidation, "invalid bootstrap address", err)
	}
	sh, err := s.ledger.GetStakeholder(ctx, addr)
	switch {
	case errors.Is(err, apperror.ErrStakeholderNotFound):
		if _, err := s.ledger.RegisterStakeholder(ctx, addr, cfg.Name, cfg.License, model.RoleRegulator); err != nil {
			return err
		}
		sh = model.Stakeholder{Address: addr, Role: model.RoleRegulator}
	case err != nil:
		return err
	case sh.Role != model.RoleRegulator:
		return apperror.New(apperror.CodeStakeholderAlreadyExists,
			"bootstrap address is registered with role "+string(sh.Role))
	}
	if !sh.Verified {
		if _, err := s.ledger.VerifyStakeholder(ctx, addr); err != nil {
			return err
		}
	}
	if err := s.accounts.Create(ctx, addr, cfg.Password, string(model.RoleRegulator)); err != nil &&
		!errors.Is(err, repository.ErrAccountExists) {
		return apperror.Wrap(apperror.CodeInternal, "create bootstrap account", err)
	}
	s.profiles.Invalidate(ctx, addr)
	s.log.Info("bootstrap regulator ready", zap.String("address", addr))
	return nil
}

// LoginResult is a credential pair plus the profile it was issued for.
type LoginResult struct {
	auth.TokenPair
	Stakeholder model.Stakeholder `json:"stakeholder"`
}

// Login checks the password and issues a credential pair carrying the
// stakeholder's current role and verification flag.
func (s *AuthService) Login(ctx context.Context, address, password string) (LoginResult, error) {
	addr, err := model.NormalizeAddress(address)
	if err != nil {
		return LoginResult{}, apperror.ErrInvalidCredentials
	}
	acct, err := s.accounts.GetByAddress(ctx, addr)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return LoginResult{}, apperror.ErrInvalidCredentials
		}
		return LoginResult{}, apperror.Wrap(apperror.CodeInternal, "load account", err)
	}
	if !repository.CheckPassword(acct.PasswordHash, password) {
		return LoginResult{}, apperror.ErrInvalidCredentials
	}

	sh, err := s.profiles.Fresh(ctx, addr)
	if err != nil {
		if errors.Is(err, apperror.ErrStakeholderNotFound) {
			s.log.Warn("account without ledger record", zap.String("address", addr))
			return LoginResult{}, apperror.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	pair, err := s.tokens.Issue(auth.Subject{Address: addr, Role: sh.Role, Verified: sh.Verified, Name: sh.Name})
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{TokenPair: pair, Stakeholder: sh}, nil
}

// Refresh rotates a refresh credential.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	return s.tokens.Refresh(ctx, refreshToken, s.profiles)
}

// Logout revokes the presented access credential and, when given, the
// refresh credential. Both are idempotent.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, accessToken); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		if apperror.CodeOf(err) == apperror.CodeTokenInvalid {
			return apperror.Wrap(apperror.CodeInvalidRefreshToken, "invalid refresh token", err)
		}
		return err
	}
	return nil
}
