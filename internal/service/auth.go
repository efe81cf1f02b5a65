// Package service holds the login business logic.
//
// A login goes through two steps that the HTTP layer calls in order:
//
//	Verify   → credentials checked against SARH, record mapped
//	Complete → local account created or refreshed, session token issued
//
// The outcome of Verify is returned as an explicit Verification value and
// handed to Complete by the caller. Nothing is cached between requests.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/ingeweb/contactws/internal/apperror"
	"github.com/ingeweb/contactws/internal/auth"
	"github.com/ingeweb/contactws/internal/config"
	"github.com/ingeweb/contactws/internal/mapping"
	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/repository"
)

// Directory is the part of the SARH client used by logins.
type Directory interface {
	Token(ctx context.Context) (string, error)
	VerifyUser(ctx context.Context, username, password, token string) (model.RemoteUser, error)
}

// Verification is the proof that SARH accepted a username and password.
type Verification struct {
	Username   string
	Record     model.RemoteUser
	Mapped     mapping.Mapped
	VerifiedAt time.Time
}

// LoginResult is what a completed login hands back to the HTTP layer.
type LoginResult struct {
	Account *model.Account
	Token   string
	Created bool
}

// Capabilities describe what the host may do with accounts of this auth
// method.
type Capabilities struct {
	PreventLocalPasswords      bool `json:"preventLocalPasswords"`
	IsInternal                 bool `json:"isInternal"`
	IsSynchronisedWithExternal bool `json:"isSynchronisedWithExternal"`
	CanChangePassword          bool `json:"canChangePassword"`
	CanResetPassword           bool `json:"canResetPassword"`
	CanBeManuallySet           bool `json:"canBeManuallySet"`
}

type LoginService struct {
	dir      Directory
	users    repository.UserRepository
	profiles repository.ProfileRepository
	links    repository.LinkedLoginRepository
	tokens   *auth.TokenService
	policy   config.Policy
	logger   *slog.Logger
	now      func() time.Time
}

func NewLoginService(
	dir Directory,
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	links repository.LinkedLoginRepository,
	tokens *auth.TokenService,
	policy config.Policy,
	logger *slog.Logger,
) *LoginService {
	return &LoginService{
		dir:      dir,
		users:    users,
		profiles: profiles,
		links:    links,
		tokens:   tokens,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// NormaliseUsername is the form usernames are compared and stored in.
func NormaliseUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Verify checks the credentials against SARH. Every failure, remote or
// not, is reported as apperror.ErrUnauthorized; the cause is logged.
func (s *LoginService) Verify(ctx context.Context, username, password string) (*Verification, error) {
	username = NormaliseUsername(username)
	if username == "" || password == "" {
		return nil, apperror.Unauthorized()
	}

	v, _, err := s.verify(ctx, username, password)
	if err != nil {
		s.logger.Warn("sarh verification failed",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unauthorized()
	}
	return v, nil
}

// UserInfo returns the mapped fields of a verified user without contacting
// SARH. ok is false when v does not belong to username.
func (s *LoginService) UserInfo(v *Verification, username string) (mapping.Mapped, bool) {
	if v == nil || v.Username != NormaliseUsername(username) {
		return mapping.Mapped{}, false
	}
	return v.Mapped, true
}

// Complete provisions the local account for a verified user and opens a
// session. When v is nil or belongs to someone else the directory is asked
// again, and any remote failure is fatal (apperror.ErrAuthFailed).
func (s *LoginService) Complete(ctx context.Context, username, password string, v *Verification) (*LoginResult, error) {
	username = NormaliseUsername(username)

	if v == nil || v.Username != username {
		fresh, stage, err := s.verify(ctx, username, password)
		if err != nil {
			s.logger.Error("login completion could not reach sarh",
				slog.String("username", username),
				slog.String("stage", stage),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("service/auth: completing login: %w", apperror.AuthFailed(stage))
		}
		v = fresh
	}

	account, created, err := s.provision(ctx, username, v.Mapped)
	if err != nil {
		return nil, err
	}

	now := s.now().Truncate(time.Second)
	if err := s.users.RecordLogin(ctx, account.ID, now); err != nil {
		return nil, fmt.Errorf("service/auth: recording login of %d: %w", account.ID, err)
	}
	account.LastLogin, account.LastAccess = now, now

	token, err := s.tokens.Generate(strconv.FormatInt(account.ID, 10))
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing session for %d: %w", account.ID, err)
	}

	s.logger.Info("login completed",
		slog.Int64("userID", account.ID),
		slog.String("username", account.Username),
		slog.Bool("created", created),
	)
	return &LoginResult{Account: account, Token: token, Created: created}, nil
}

// Account returns the session owner.
func (s *LoginService) Account(ctx context.Context, id int64) (*model.Account, error) {
	a, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching account %d: %w", id, err)
	}
	return a, nil
}

// LinkedLogins lists the SARH usernames tied to an account.
func (s *LoginService) LinkedLogins(ctx context.Context, id int64) ([]model.LinkedLogin, error) {
	logins, err := s.links.ListByUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing linked logins of %d: %w", id, err)
	}
	return logins, nil
}

func (s *LoginService) Capabilities() Capabilities {
	return Capabilities{
		PreventLocalPasswords:      true,
		IsSynchronisedWithExternal: true,
		CanBeManuallySet:           true,
	}
}

// verify runs token then user verification. stage names the step that
// failed: "token", "api" or "response".
func (s *LoginService) verify(ctx context.Context, username, password string) (*Verification, string, error) {
	token, err := s.dir.Token(ctx)
	if err != nil {
		return nil, "token", err
	}

	rec, err := s.dir.VerifyUser(ctx, username, password, token)
	if err != nil {
		return nil, "api", err
	}
	if rec == nil {
		return nil, "response", errors.New("empty user record")
	}

	table, err := s.table(ctx)
	if err != nil {
		return nil, "response", err
	}

	return &Verification{
		Username:   username,
		Record:     rec,
		Mapped:     table.Map(rec),
		VerifiedAt: s.now(),
	}, "", nil
}

func (s *LoginService) table(ctx context.Context) (*mapping.Table, error) {
	fields, err := s.profiles.ListFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing profile fields: %w", err)
	}
	table, skipped := mapping.BuildTable(mapping.RequiredProfileFields, fields)
	if len(skipped) > 0 {
		s.logger.Debug("profile fields not defined on this site",
			slog.String("skipped", strings.Join(skipped, ",")))
	}
	return table, nil
}

func (s *LoginService) provision(ctx context.Context, username string, m mapping.Mapped) (*model.Account, bool, error) {
	account, err := s.users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		if err := s.ensureUnlinked(ctx, username); err != nil {
			return nil, false, err
		}
		account, err = s.create(ctx, username, m)
		return account, err == nil, err
	case err != nil:
		return nil, false, fmt.Errorf("service/auth: looking up %q: %w", username, err)
	}

	if account.Auth != s.policy.AuthMethod {
		return nil, false, apperror.Forbidden("account uses a different authentication method")
	}
	if account.Suspended {
		return nil, false, apperror.Forbidden("account is suspended")
	}

	if err := s.refresh(ctx, account, m); err != nil {
		return nil, false, err
	}
	return account, false, nil
}

// ensureUnlinked refuses to provision an account for a SARH username that
// is still linked to another local account.
func (s *LoginService) ensureUnlinked(ctx context.Context, username string) error {
	link, err := s.links.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("service/auth: looking up link of %q: %w", username, err)
	}
	s.logger.Warn("sarh login already linked to another account",
		slog.String("username", username),
		slog.Int64("linkedUserID", link.UserID),
	)
	return apperror.Conflict("linked login", username)
}

func (s *LoginService) create(ctx context.Context, username string, m mapping.Mapped) (*model.Account, error) {
	if s.policy.PreventAccountCreation {
		s.logger.Warn("account creation blocked", slog.String("username", username))
		return nil, apperror.CreationBlocked(username)
	}

	account := &model.Account{
		Auth:      s.policy.AuthMethod,
		Username:  username,
		IDNumber:  m.Standard.IDNumber,
		FirstName: m.Standard.FirstName,
		LastName:  m.Standard.LastName,
		Email:     m.Standard.Email,
		Confirmed: true,
	}
	if err := s.users.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("service/auth: creating account %q: %w", username, err)
	}
	if err := s.profiles.SaveProfile(ctx, account.ID, m.Custom); err != nil {
		return nil, fmt.Errorf("service/auth: saving profile of %d: %w", account.ID, err)
	}

	link := &model.LinkedLogin{UserID: account.ID, Username: username, Email: account.Email}
	if err := s.links.Link(ctx, link); err != nil {
		return nil, fmt.Errorf("service/auth: linking %q: %w", username, err)
	}

	s.logger.Info("account created",
		slog.Int64("userID", account.ID),
		slog.String("username", username),
	)
	return account, nil
}

// refresh writes changed standard fields in one update and re-writes every
// custom field. The username is the lookup key and is never rewritten.
func (s *LoginService) refresh(ctx context.Context, account *model.Account, m mapping.Mapped) error {
	changed := make(map[string]string)
	for _, f := range mapping.StandardFields {
		if f.Local == "username" {
			continue
		}
		if v := m.Standard.Get(f.Local); v != accountField(account, f.Local) {
			changed[f.Local] = v
		}
	}

	if len(changed) > 0 {
		if err := s.users.UpdateFields(ctx, account.ID, changed); err != nil {
			return fmt.Errorf("service/auth: updating account %d: %w", account.ID, err)
		}
		applyFields(account, changed)
		s.logger.Debug("account fields updated",
			slog.Int64("userID", account.ID),
			slog.Int("fields", len(changed)),
		)
	}

	current, err := s.profiles.LoadProfile(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("service/auth: loading profile of %d: %w", account.ID, err)
	}
	if current == nil {
		current = make(map[string]string, len(m.Custom))
	}
	maps.Copy(current, m.Custom)
	if err := s.profiles.SaveProfile(ctx, account.ID, current); err != nil {
		return fmt.Errorf("service/auth: saving profile of %d: %w", account.ID, err)
	}
	return nil
}

func accountField(a *model.Account, local string) string {
	switch local {
	case "username":
		return a.Username
	case "firstname":
		return a.FirstName
	case "lastname":
		return a.LastName
	case "email":
		return a.Email
	case "idnumber":
		return a.IDNumber
	}
	return ""
}

func applyFields(a *model.Account, fields map[string]string) {
	for k, v := range fields {
		switch k {
		case "firstname":
			a.FirstName = v
		case "lastname":
			a.LastName = v
		case "email":
			a.Email = v
		case "idnumber":
			a.IDNumber = v
		}
	}
}
