package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"caller-lookup-bot/internal/domain"
)

// User-facing reply texts. The webhook delivers exactly one of these (or a
// looked-up display name) per inbound message.
const (
	ReplyHelp           = "Use /login to login with your Truecaller account."
	ReplyAskPhone       = "Enter phone number in +91 format:"
	ReplyPhoneNeedsPlus = "Phone must start with +"
	ReplyLoginFailed    = "Login failed. Try later."
	ReplyAskOtp         = "Enter OTP:"
	ReplyOtpFailed      = "OTP verification failed."
	ReplyInvalidOtp     = "Invalid OTP or login failed."
	ReplyLoginSuccess   = "Login successful."
	ReplyLoggedOut      = "Logged out."
	ReplyPleaseLogin    = "Please /login first."
	ReplyUnknownCommand = "Unknown command. Use /start, /login or /logout."
	ReplySearchFailed   = "Search failed."
	ReplyNoResult       = "No result found."
)

// Recognized commands. Exact, case-sensitive match; any other "/"-prefixed
// text is command-like and is never consumed as phone, OTP or query input.
const (
	cmdStart  = "/start"
	cmdLogin  = "/login"
	cmdLogout = "/logout"
)

// SessionStore persists one login session per chat. Get must observe the
// latest successful Put for the same chat ID (each webhook delivery performs
// one get-then-put sequence, and redeliveries must resume from the prior
// write).
type SessionStore interface {
	Get(ctx context.Context, chatID int64) (domain.Session, bool, error)
	Put(ctx context.Context, session domain.Session) error
	Delete(ctx context.Context, chatID int64) error
}

// IdentityClient invokes the three remote identity provider operations.
// All transport and provider errors come back as plain errors; the service
// only ever branches on success versus failure.
type IdentityClient interface {
	InitiateLogin(ctx context.Context, phoneNumber string) (challenge string, err error)
	VerifyOtp(ctx context.Context, phoneNumber, challenge, otpCode string) (domain.Credentials, error)
	Lookup(ctx context.Context, query, installationID, countryCode string) (name string, found bool, err error)
}

type HandleInput struct {
	ChatID int64
	Text   string
}

type HandleOutput struct {
	Reply string
}

// Service is the conversation state machine. Each call to Handle is one
// webhook delivery: load the session, decide the transition, persist, reply.
type Service struct {
	store    SessionStore
	identity IdentityClient
}

func NewService(store SessionStore, identity IdentityClient) (*Service, error) {
	if store == nil {
		return nil, errors.New("conversation: session store must not be nil")
	}
	if identity == nil {
		return nil, errors.New("conversation: identity client must not be nil")
	}
	return &Service{store: store, identity: identity}, nil
}

// Handle applies one inbound message to the chat's session. Global commands
// win over state-specific interpretation in every state, so a user stuck
// mid-flow can always escape via /login or /logout.
func (s *Service) Handle(ctx context.Context, in HandleInput) (HandleOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return HandleOutput{}, newError(ErrorInvalidInput, "empty_text", nil)
	}

	session, found, err := s.store.Get(ctx, in.ChatID)
	if err != nil {
		return HandleOutput{}, newError(ErrorInternal, "session_read_error", err)
	}
	if !found {
		session = domain.LoggedOut(in.ChatID)
	}

	if strings.HasPrefix(text, "/") {
		return s.handleCommand(ctx, session, text)
	}

	switch session.Status {
	case domain.StatusAwaitingPhone:
		return s.submitPhone(ctx, session, text)
	case domain.StatusAwaitingOtp:
		return s.submitOtp(ctx, session, text)
	case domain.StatusLoggedIn:
		return s.lookup(ctx, session, text)
	default:
		return HandleOutput{Reply: ReplyPleaseLogin}, nil
	}
}

func (s *Service) handleCommand(ctx context.Context, session domain.Session, text string) (HandleOutput, error) {
	switch text {
	case cmdStart:
		return HandleOutput{Reply: ReplyHelp}, nil

	case cmdLogin:
		next := domain.Session{
			ChatID:    session.ChatID,
			Status:    domain.StatusAwaitingPhone,
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.store.Put(ctx, next); err != nil {
			return HandleOutput{}, newError(ErrorInternal, "session_write_error", err)
		}
		return HandleOutput{Reply: ReplyAskPhone}, nil

	case cmdLogout:
		if err := s.store.Delete(ctx, session.ChatID); err != nil {
			return HandleOutput{}, newError(ErrorInternal, "session_delete_error", err)
		}
		return HandleOutput{Reply: ReplyLoggedOut}, nil
	}

	// Command-like but unrecognized: never consumed as phone/OTP/query.
	if session.Status == domain.StatusLoggedIn {
		return HandleOutput{Reply: ReplyUnknownCommand}, nil
	}
	return HandleOutput{Reply: ReplyPleaseLogin}, nil
}

// submitPhone validates the number and initiates the provider login. A
// provider failure leaves the session at awaiting_phone so the user can
// resubmit without another /login.
func (s *Service) submitPhone(ctx context.Context, session domain.Session, phone string) (HandleOutput, error) {
	if !strings.HasPrefix(phone, "+") {
		return HandleOutput{Reply: ReplyPhoneNeedsPlus}, nil
	}

	challenge, err := s.identity.InitiateLogin(ctx, phone)
	if err != nil {
		slog.Error("login initiation failed", "chat_id", session.ChatID, "err", err)
		return HandleOutput{Reply: ReplyLoginFailed}, nil
	}

	next := domain.Session{
		ChatID:         session.ChatID,
		Status:         domain.StatusAwaitingOtp,
		PhoneNumber:    phone,
		LoginChallenge: challenge,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.store.Put(ctx, next); err != nil {
		return HandleOutput{}, newError(ErrorInternal, "session_write_error", err)
	}
	return HandleOutput{Reply: ReplyAskOtp}, nil
}

// submitOtp verifies the code against the stored phone and challenge. Both
// transport failure and provider rejection (empty installation id) leave the
// session at awaiting_otp; only the reply wording differs.
func (s *Service) submitOtp(ctx context.Context, session domain.Session, otp string) (HandleOutput, error) {
	creds, err := s.identity.VerifyOtp(ctx, session.PhoneNumber, session.LoginChallenge, otp)
	if err != nil {
		slog.Error("otp verification failed", "chat_id", session.ChatID, "err", err)
		return HandleOutput{Reply: ReplyOtpFailed}, nil
	}
	if creds.InstallationID == "" {
		return HandleOutput{Reply: ReplyInvalidOtp}, nil
	}

	next := domain.Session{
		ChatID:         session.ChatID,
		Status:         domain.StatusLoggedIn,
		InstallationID: creds.InstallationID,
		CountryCode:    creds.CountryCode,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.store.Put(ctx, next); err != nil {
		return HandleOutput{}, newError(ErrorInternal, "session_write_error", err)
	}
	return HandleOutput{Reply: ReplyLoginSuccess}, nil
}

func (s *Service) lookup(ctx context.Context, session domain.Session, query string) (HandleOutput, error) {
	name, found, err := s.identity.Lookup(ctx, query, session.InstallationID, session.CountryCode)
	if err != nil {
		slog.Error("lookup failed", "chat_id", session.ChatID, "err", err)
		return HandleOutput{Reply: ReplySearchFailed}, nil
	}
	if !found || name == "" {
		return HandleOutput{Reply: ReplyNoResult}, nil
	}
	return HandleOutput{Reply: name}, nil
}
