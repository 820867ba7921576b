package backend

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/thegamersstation/gsm/internal/apperr"
	"github.com/thegamersstation/gsm/internal/bus"
	"github.com/thegamersstation/gsm/internal/domain"
	"go.uber.org/zap"
)

// OTPRequested is the reply to an OTP request.
type OTPRequested struct {
	Message          string `json:"message,omitempty"`
	ExpiresInSeconds int    `json:"expiresInSeconds,omitempty"`
}

// RequestOTP sends a one-time code to phone.
func (c *Client) RequestOTP(ctx context.Context, phone string) (*OTPRequested, error) {
	var out OTPRequested
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/otp/request",
		in:     map[string]string{"phoneNumber": phone},
		out:    &out,
		public: true,
	})
	if err != nil {
		return nil, fmt.Errorf("request otp: %w", err)
	}
	return &out, nil
}

// VerifyOTP exchanges the code for tokens and stores the session.
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*domain.AuthResponse, error) {
	var out domain.AuthResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/otp/verify",
		in:     map[string]string{"phoneNumber": phone, "code": code},
		out:    &out,
		public: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	if out.AccessToken != "" && out.RefreshToken != "" {
		if err := c.tokens.SetTokens(out.AccessToken, out.RefreshToken); err != nil {
			return nil, err
		}
		user := domain.User{
			UserID:           out.UserID,
			PhoneNumber:      out.PhoneNumber,
			Role:             out.Role,
			ProfileCompleted: out.ProfileCompleted,
			IsNewUser:        out.IsNewUser,
		}
		if err := c.tokens.SetUser(user); err != nil {
			return nil, err
		}
		c.bus.Emit(bus.KindAuthLogin, user)
	}
	return &out, nil
}

// Refresh rotates the token pair with the stored refresh token. Any failure
// clears the session.
func (c *Client) Refresh(ctx context.Context) (*domain.AuthResponse, error) {
	refresh := c.tokens.RefreshToken()
	if refresh == "" {
		return nil, ErrNoRefreshToken
	}
	status, raw, err := c.send(ctx, request{method: http.MethodPost, path: "/auth/refresh"}, nil, refresh)
	if err == nil && (status < 200 || status > 299) {
		err = apperr.FromResponse(status, raw)
	}
	var out domain.AuthResponse
	if err == nil {
		err = decodeJSON(raw, &out)
	}
	if err != nil {
		if cerr := c.tokens.Clear(); cerr != nil {
			c.log.Error("clear tokens", zap.Error(cerr))
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if out.AccessToken != "" && out.RefreshToken != "" {
		if err := c.tokens.SetTokens(out.AccessToken, out.RefreshToken); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// Logout clears the session and asks the UI to show the login page.
func (c *Client) Logout() error {
	if err := c.tokens.Clear(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.bus.Emit(bus.KindAuthLogout, bus.Navigation{To: "/login"})
	return nil
}

// CurrentUser returns the stored session user, or nil when logged out.
func (c *Client) CurrentUser() (*domain.User, error) {
	return c.tokens.User()
}

// IsAuthenticated reports whether an access token is stored.
func (c *Client) IsAuthenticated() bool {
	return c.tokens.AccessToken() != ""
}

// FormatPhone normalizes a Saudi number to +966 form.
func FormatPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "966"):
		return "+" + digits
	case strings.HasPrefix(digits, "0"):
		return "+966" + digits[1:]
	default:
		return "+966" + digits
	}
}

var saudiPhone = regexp.MustCompile(`^\+966[0-9]{9}$`)

// ValidatePhone reports whether phone is a formatted Saudi number.
func ValidatePhone(phone string) bool {
	return saudiPhone.MatchString(phone)
}
