package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/thegamersstation/gsm/internal/bus"
	"golang.org/x/text/language"
)

// Body is the subset of an error response the client understands: Spring
// ProblemDetail plus the bilingual fields of the marketplace API.
type Body struct {
	Message        string `json:"message,omitempty"`
	Detail         string `json:"detail,omitempty"`
	Title          string `json:"title,omitempty"`
	MessageAr      string `json:"messageAr,omitempty"`
	MessageEn      string `json:"messageEn,omitempty"`
	MessageArSnake string `json:"message_ar,omitempty"`
	MessageEnSnake string `json:"message_en,omitempty"`
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status int
	Body   Body
}

// FromResponse builds an APIError from a status and raw body. Bodies that
// aren't JSON become the message.
func FromResponse(status int, raw []byte) *APIError {
	e := &APIError{Status: status}
	if err := json.Unmarshal(raw, &e.Body); err != nil {
		e.Body = Body{Message: strings.TrimSpace(string(raw))}
	}
	return e
}

// Error embeds the status as "[NNN]" so it survives being flattened to text.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s [%d]", e.ServerMessage(), e.Status)
}

// ServerMessage returns the message the server supplied, or the status text.
func (e *APIError) ServerMessage() string {
	for _, s := range []string{e.Body.Message, e.Body.Detail, e.Body.MessageEn, e.Body.MessageAr, e.Body.Title} {
		if s != "" {
			return s
		}
	}
	if t := http.StatusText(e.Status); t != "" {
		return t
	}
	return "API request failed"
}

// Localized returns the server's copy in lang if present, else the catalog
// copy for the status.
func (e *APIError) Localized(lang string) string {
	if lang == "ar" && e.Body.MessageAr != "" {
		return e.Body.MessageAr
	}
	if lang == "en" && e.Body.MessageEn != "" {
		return e.Body.MessageEn
	}
	return ForStatus(e.Status).In(lang)
}

var statusInText = regexp.MustCompile(`\[(\d+)\]`)

// StatusOf returns the HTTP status carried by err, looking through wrapping
// first and then for a "[NNN]" marker in the text. Zero if none.
func StatusOf(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	if m := statusInText.FindStringSubmatch(err.Error()); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// Parse resolves the bilingual copy for err: explicit bilingual fields, then
// a single server message placed by script, then the status, then network
// failures, then the default.
func Parse(err error) Messages {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		b := apiErr.Body
		if b.MessageAr != "" && b.MessageEn != "" {
			return Messages{Ar: b.MessageAr, En: b.MessageEn}
		}
		if b.MessageArSnake != "" && b.MessageEnSnake != "" {
			return Messages{Ar: b.MessageArSnake, En: b.MessageEnSnake}
		}
		for _, s := range []string{b.Message, b.Detail} {
			if s != "" {
				return placeByScript(s)
			}
		}
	}
	if err == nil {
		return Lookup(Default)
	}
	if status := StatusOf(err); status != 0 {
		return ForStatus(status)
	}
	if IsTimeout(err) {
		return Lookup(Timeout)
	}
	if IsNetwork(err) {
		return Lookup(NetworkError)
	}
	return Lookup(Default)
}

// Localize is Parse followed by language selection.
func Localize(err error, lang string) string {
	return Parse(err).In(lang)
}

func placeByScript(s string) Messages {
	def := Lookup(Default)
	if HasArabic(s) {
		return Messages{Ar: s, En: def.En}
	}
	return Messages{Ar: def.Ar, En: s}
}

// HasArabic reports whether s contains a character of the Arabic block.
func HasArabic(s string) bool {
	for _, r := range s {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}

// IsTimeout reports deadline and dial timeouts.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNetwork reports failures to reach the server at all.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"Failed to fetch", "NetworkError", "Network request failed", "connection refused", "no such host"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var languages = language.NewMatcher([]language.Tag{language.Arabic, language.English})

// MatchLanguage maps a stored locale ("en-US", "ar-SA", "") to "ar" or "en".
// Arabic is the default.
func MatchLanguage(locale string) string {
	if locale == "" {
		return "ar"
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return "ar"
	}
	_, idx, conf := languages.Match(tags...)
	if conf == language.No || idx != 1 {
		return "ar"
	}
	return "en"
}

// Notify publishes err on the bus as a notify.error toast.
func Notify(b *bus.Bus, err error) {
	if err == nil {
		return
	}
	m := Parse(err)
	b.Emit(bus.KindNotifyError, bus.Notice{MessageAr: m.Ar, MessageEn: m.En, Status: StatusOf(err)})
}
