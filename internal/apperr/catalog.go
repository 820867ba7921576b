// Package apperr carries backend errors and their bilingual user-facing copy.
package apperr

// Messages is one piece of user-facing copy in both UI languages.
type Messages struct {
	Ar string
	En string
}

// In returns the copy for lang ("ar" or "en"), falling back to English.
func (m Messages) In(lang string) string {
	if lang == "ar" && m.Ar != "" {
		return m.Ar
	}
	if m.En != "" {
		return m.En
	}
	return m.Ar
}

// Code names an entry of the catalog.
type Code string

const (
	Default             Code = "DEFAULT"
	NetworkError        Code = "NETWORK_ERROR"
	Unauthorized        Code = "UNAUTHORIZED"
	Forbidden           Code = "FORBIDDEN"
	BadRequest          Code = "BAD_REQUEST"
	NotFound            Code = "NOT_FOUND"
	ValidationError     Code = "VALIDATION_ERROR"
	InternalServerError Code = "INTERNAL_SERVER_ERROR"
	ServiceUnavailable  Code = "SERVICE_UNAVAILABLE"
	Timeout             Code = "TIMEOUT"
	DuplicateEntry      Code = "DUPLICATE_ENTRY"
	ResourceLocked      Code = "RESOURCE_LOCKED"
)

var catalog = map[Code]Messages{
	Default: {
		Ar: "عذراً، حدث خطأ غير متوقع. يرجى محاولة تحديث الصفحة أو التواصل مع الدعم الفني إذا استمرت المشكلة.",
		En: "An unexpected error occurred. Please try refreshing the page or contact support if the issue persists.",
	},
	NetworkError: {
		Ar: "خطأ في الاتصال بالشبكة. يرجى التحقق من اتصالك بالإنترنت.",
		En: "Network connection error. Please check your internet connection.",
	},
	Unauthorized: {
		Ar: "انتهت صلاحية جلستك. يرجى تسجيل الدخول مرة أخرى.",
		En: "Your session has expired. Please log in again.",
	},
	Forbidden: {
		Ar: "ليس لديك صلاحية للوصول إلى هذا المحتوى.",
		En: "You do not have permission to access this content.",
	},
	BadRequest: {
		Ar: "البيانات المدخلة غير صحيحة. يرجى التحقق من المعلومات المدخلة.",
		En: "Invalid data provided. Please check your input.",
	},
	NotFound: {
		Ar: "المحتوى المطلوب غير موجود.",
		En: "The requested content was not found.",
	},
	ValidationError: {
		Ar: "يرجى التحقق من صحة البيانات المدخلة.",
		En: "Please check the validity of your input.",
	},
	InternalServerError: {
		Ar: "حدث خطأ في الخادم. يرجى المحاولة لاحقاً.",
		En: "A server error occurred. Please try again later.",
	},
	ServiceUnavailable: {
		Ar: "الخدمة غير متاحة حالياً. يرجى المحاولة لاحقاً.",
		En: "Service is currently unavailable. Please try again later.",
	},
	Timeout: {
		Ar: "انتهت مهلة الاتصال. يرجى المحاولة مرة أخرى.",
		En: "Connection timeout. Please try again.",
	},
	DuplicateEntry: {
		Ar: "هذا المحتوى موجود بالفعل.",
		En: "This content already exists.",
	},
	ResourceLocked: {
		Ar: "هذا المحتوى مقفل حالياً. يرجى المحاولة لاحقاً.",
		En: "This content is currently locked. Please try again later.",
	},
}

var statusCodes = map[int]Code{
	400: BadRequest,
	401: Unauthorized,
	403: Forbidden,
	404: NotFound,
	422: ValidationError,
	500: InternalServerError,
	502: ServiceUnavailable,
	503: ServiceUnavailable,
	504: Timeout,
}

// Lookup returns the copy for a code, or the default copy.
func Lookup(c Code) Messages {
	if m, ok := catalog[c]; ok {
		return m
	}
	return catalog[Default]
}

// CodeForStatus maps an HTTP status to a catalog code.
func CodeForStatus(status int) Code {
	if c, ok := statusCodes[status]; ok {
		return c
	}
	return Default
}

// ForStatus returns the copy shown for an HTTP status.
func ForStatus(status int) Messages {
	return Lookup(CodeForStatus(status))
}
