package chat

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/thegamersstation/gsm/internal/apperr"
)

var (
	ErrCannotMessageSelf = errors.New("cannot message yourself")
	ErrProductNotFound   = errors.New("product not found")
	ErrSendFailed        = errors.New("message not sent")
	ErrLoginRequired     = errors.New("login required")
	ErrEmptyMessage      = errors.New("message is empty")
)

// LoginRequiredError asks the UI to show the login screen and come back
// to ReturnPath afterwards.
type LoginRequiredError struct {
	ReturnPath string
	Err        error
}

func (e *LoginRequiredError) Error() string {
	if e.Err == nil {
		return ErrLoginRequired.Error()
	}
	return fmt.Sprintf("%s: %v", ErrLoginRequired, e.Err)
}

func (e *LoginRequiredError) Is(target error) bool { return target == ErrLoginRequired }

func (e *LoginRequiredError) Unwrap() error { return e.Err }

// classifySend maps a REST send failure to the banner it should produce.
// The status is read the same way for typed and plain errors.
func classifySend(err error) error {
	status := apperr.StatusOf(err)
	switch {
	case status == http.StatusBadRequest || strings.Contains(strings.ToLower(err.Error()), "yourself"):
		return fmt.Errorf("%w: %w", ErrCannotMessageSelf, err)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrProductNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
}

func loginRequired(path string, err error) error {
	switch apperr.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &LoginRequiredError{ReturnPath: path, Err: err}
	}
	return err
}

var banners = map[error]apperr.Messages{
	ErrCannotMessageSelf: {Ar: "لا يمكنك مراسلة نفسك", En: "You cannot message yourself"},
	ErrProductNotFound:   {Ar: "المنتج غير موجود", En: "Product not found"},
	ErrSendFailed:        {Ar: "فشل إرسال الرسالة. حاول مرة أخرى", En: "Failed to send message. Please try again"},
	ErrLoginRequired:     apperr.Lookup(apperr.Unauthorized),
}

// Banner returns the inline error text for err in lang.
func Banner(err error, lang string) string {
	for sentinel, m := range banners {
		if errors.Is(err, sentinel) {
			return m.In(lang)
		}
	}
	return apperr.Localize(err, lang)
}
