package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/event-auth/internal/auth"
	"github.com/spec-kit/event-auth/internal/config"
	"github.com/spec-kit/event-auth/internal/domain"
	"github.com/spec-kit/event-auth/internal/events"
	"github.com/spec-kit/event-auth/internal/repository"
	apperrors "github.com/spec-kit/event-auth/pkg/util/errorutil"
)

const (
	minNameLength     = 2
	maxNameLength     = 50
	minPasswordLength = 6
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
)

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// TokenIssuer issues bearer tokens for authenticated users.
type TokenIssuer interface {
	Issue(subjectID string, role domain.Role, ttl time.Duration) (string, time.Time, error)
}

// ProfileStore serves user profiles without password hashes.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*domain.User, error)
	Invalidate(ctx context.Context, id string) error
}

// TokenRecorder counts issued tokens.
type TokenRecorder interface {
	RecordTokenIssued(role string)
}

// IssuedToken is a signed token plus its expiry.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// AuthService coordinates registration, login and role management. Password
// checks happen here; the token manager only ever sees verified users.
type AuthService struct {
	users      repository.UserRepository
	profiles   ProfileStore
	tokens     TokenIssuer
	dispatcher events.Dispatcher
	metrics    TokenRecorder
	logger     *zap.Logger
	bcryptCost int
	dummyHash  string
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Profiles   ProfileStore
	Tokens     TokenIssuer
	Dispatcher events.Dispatcher
	Metrics    TokenRecorder
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	profiles := deps.Profiles
	if profiles == nil {
		profiles = repository.NewProfileCache(deps.UserRepo, nil, 0, logger)
	}

	// Compared against on unknown emails so both login failures cost one bcrypt check.
	dummy, err := auth.HashPassword(uuid.NewString(), cfg.BcryptCost)
	if err != nil {
		logger.Warn("could not prepare dummy password hash", zap.Error(err))
	}

	return &AuthService{
		users:      deps.UserRepo,
		profiles:   profiles,
		tokens:     deps.Tokens,
		dispatcher: dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		bcryptCost: cfg.BcryptCost,
		dummyHash:  dummy,
		now:        time.Now,
	}
}

// Register creates a new account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, IssuedToken, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)

	role := domain.RoleStudent
	if strings.TrimSpace(in.Role) != "" {
		parsed, ok := domain.ParseRole(in.Role)
		if !ok || !parsed.SelfAssignable() {
			return nil, IssuedToken{}, apperrors.NewValidationError("invalid role", map[string]any{
				"role": "must be one of: student, organizer",
			})
		}
		role = parsed
	}

	if details := validateRegistration(name, email, in.Password); len(details) > 0 {
		return nil, IssuedToken{}, apperrors.NewValidationError("validation failed", details)
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, IssuedToken{}, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, IssuedToken{}, apperrors.NewConflict("User with this email already exists", nil)
		}
		return nil, IssuedToken{}, apperrors.NewInternalError(err)
	}

	issued, err := s.issue(user)
	if err != nil {
		return nil, IssuedToken{}, err
	}

	s.publish(ctx, events.EventUserRegistered, user.ID, events.UserRegisteredPayload{Role: user.Role})
	return user, issued, nil
}

// Login checks the password and issues a token. Unknown email and wrong
// password produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, IssuedToken, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, IssuedToken{}, apperrors.NewValidationError("email and password required", nil)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, IssuedToken{}, apperrors.NewInternalError(err)
		}
		if s.dummyHash != "" {
			_ = auth.ComparePassword(s.dummyHash, password)
		}
		s.publish(ctx, events.EventLoginFailed, "", events.LoginFailedPayload{Email: email, Reason: "unknown_email"})
		return nil, IssuedToken{}, invalidCredentials()
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("password comparison failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		s.publish(ctx, events.EventLoginFailed, user.ID, events.LoginFailedPayload{Email: email, Reason: "bad_password"})
		return nil, IssuedToken{}, invalidCredentials()
	}

	issued, err := s.issue(user)
	if err != nil {
		return nil, IssuedToken{}, err
	}

	s.publish(ctx, events.EventUserLoggedIn, user.ID, nil)
	return user, issued, nil
}

// CurrentUser loads the profile behind a verified identity.
func (s *AuthService) CurrentUser(ctx context.Context, identity auth.Identity) (*domain.User, error) {
	user, err := s.profiles.GetProfile(ctx, identity.SubjectID())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

// ChangeRole sets a user's role. Tokens already issued keep their old role
// until they expire.
func (s *AuthService) ChangeRole(ctx context.Context, actor auth.Identity, userID, rawRole string) (*domain.User, error) {
	role, ok := domain.ParseRole(rawRole)
	if !ok {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{
			"role": "must be one of: student, organizer, admin",
		})
	}
	// Account ids are UUIDs; anything else cannot name a user.
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
	}
	if userID == actor.SubjectID() {
		return nil, apperrors.NewValidationError("cannot change your own role", nil)
	}

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, apperrors.NewInternalError(err)
	}

	if current.Role != role {
		if err := s.users.UpdateRole(ctx, userID, role); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
			}
			return nil, apperrors.NewInternalError(err)
		}
		if err := s.profiles.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("profile cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		}
		s.publish(ctx, events.EventRoleChanged, userID, events.RoleChangedPayload{
			OldRole:   current.Role,
			NewRole:   role,
			ChangedBy: actor.SubjectID(),
		})
	}

	current.Role = role
	current.PasswordHash = ""
	return current, nil
}

func (s *AuthService) issue(user *domain.User) (IssuedToken, error) {
	token, exp, err := s.tokens.Issue(user.ID, user.Role, 0)
	if err != nil {
		// Configuration failures keep their auth kind so they render as 500.
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			return IssuedToken{}, authErr
		}
		return IssuedToken{}, apperrors.NewInternalError(err)
	}
	if s.metrics != nil {
		s.metrics.RecordTokenIssued(string(user.Role))
	}
	return IssuedToken{Token: token, ExpiresAt: exp}, nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, subjectID string, payload interface{}) {
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

func invalidCredentials() error {
	return apperrors.NewUnauthorized("Invalid email or password")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(name, email, password string) map[string]any {
	details := map[string]any{}

	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		details["name"] = "Name is required"
	case n < minNameLength:
		details["name"] = "Name must be at least 2 characters"
	case n > maxNameLength:
		details["name"] = "Name cannot exceed 50 characters"
	}

	switch {
	case email == "":
		details["email"] = "Email is required"
	case !emailPattern.MatchString(email):
		details["email"] = "Please provide a valid email address"
	}

	switch {
	case password == "":
		details["password"] = "Password is required"
	case len(password) < minPasswordLength:
		details["password"] = "Password must be at least 6 characters"
	case len(password) > maxPasswordLength:
		details["password"] = "Password cannot exceed 72 bytes"
	}

	return details
}
