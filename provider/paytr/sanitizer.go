package paytr

import (
	"encoding/json"
	"math"
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/gopaytr/provider"
)

// Every sanitizer in this file is total: it never fails and always
// returns a value that is safe to sign and send to PayTR.

const (
	defaultCurrency = "TL"
	defaultLang     = "tr"

	// trimSet is stripped from both ends of free text
	trimSet = " \t\n\r\x00\x0B"

	maxInt = int(^uint(0) >> 1)
	minInt = -maxInt - 1
)

var (
	allowedCurrencies = []string{"TL", "EUR", "USD", "GBP", "RUB"}
	allowedLanguages  = []string{"tr", "en", "de", "ru", "ar"}

	nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)
	nonPhone        = regexp.MustCompile(`[^0-9+]`)
	leadingNumber   = regexp.MustCompile(`^[ \t\n\r\v\f]*[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		`"`, "&quot;",
		"'", "&apos;",
		"<", "&lt;",
		">", "&gt;",
	)

	emailValidator = validator.New()
)

// MerchantOid keeps only ASCII letters and digits. PayTR rejects any other
// character in merchant_oid, so callers must check for an empty result.
func MerchantOid(orderID string) string {
	return nonAlphanumeric.ReplaceAllString(orderID, "")
}

// Email returns a trimmed, filtered address or "" when it is not valid
func Email(email string) string {
	email = strings.TrimSpace(email)

	var b strings.Builder
	b.Grow(len(email))
	for i := 0; i < len(email); i++ {
		if isEmailSafe(email[i]) {
			b.WriteByte(email[i])
		}
	}
	email = b.String()

	if err := emailValidator.Var(email, "required,email"); err != nil {
		return ""
	}
	return email
}

func isEmailSafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$%&'*+-=?^_`{|}~@.[]", c) >= 0
}

// Text neutralizes free text for names, addresses and reason messages:
// NUL bytes and tags are removed, HTML special characters are encoded and
// the result is cut to maxLength runes. Input that is not valid UTF-8
// yields "".
func Text(value string, maxLength int) string {
	if !utf8.ValidString(value) {
		return ""
	}
	value = strings.ReplaceAll(value, "\x00", "")
	value = stripTags(value)
	value = htmlEscaper.Replace(value)
	value = strings.Trim(value, trimSet)
	return truncateRunes(value, maxLength)
}

// stripTags drops everything between '<' and the matching '>'. A '<'
// followed by whitespace stays literal; any other '<' opens a tag, so
// "1<2 and 3>2" becomes "12". An unterminated tag swallows the rest of
// the input.
func stripTags(s string) string {
	if strings.IndexByte(s, '<') < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	inTag := false
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inTag {
			switch {
			case quote != 0:
				if c == quote {
					quote = 0
				}
			case c == '"' || c == '\'':
				quote = c
			case c == '>':
				inTag = false
			}
			continue
		}

		if c == '<' && (i+1 == len(s) || opensTag(s[i+1])) {
			inTag = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func opensTag(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return false
	}
	return true
}

func truncateRunes(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLength {
			return s[:i]
		}
		n++
	}
	return s
}

// Phone keeps digits and '+'
func Phone(phone string) string {
	return nonPhone.ReplaceAllString(phone, "")
}

// IP returns the address unchanged when it is an IPv4 or IPv6 literal and
// 0.0.0.0 otherwise
func IP(ip string) string {
	if net.ParseIP(ip) == nil {
		return "0.0.0.0"
	}
	return ip
}

// Amount coerces value to a non-negative float. Strings contribute their
// leading numeric prefix ("12.3abc" is 12.3, "abc" is 0); NaN, infinities
// and unsupported types become 0.
func Amount(value any) float64 {
	f := toFloat(value)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// Basket sanitizes basket rows. Rows with fewer than three elements are
// dropped without being reported; this is deliberate and callers that
// care about the charged amount must check the result length themselves.
func Basket(rows []provider.BasketRow) []provider.BasketItem {
	items := make([]provider.BasketItem, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		items = append(items, provider.BasketItem{
			Name:     Text(toString(row[0]), 100),
			Price:    formatPrice(toFloat(row[1])),
			Quantity: max(1, toInt(row[2])),
		})
	}
	return items
}

func formatPrice(price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		price = 0
	}
	formatted := strconv.FormatFloat(price, 'f', 2, 64)
	if formatted == "-0.00" {
		return "0.00"
	}
	return formatted
}

// Currency upper-cases and trims the code, falling back to TL
func Currency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if slices.Contains(allowedCurrencies, currency) {
		return currency
	}
	return defaultCurrency
}

// Language lower-cases and trims the code, falling back to tr
func Language(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if slices.Contains(allowedLanguages, lang) {
		return lang
	}
	return defaultLang
}

// CallbackData projects raw callback fields onto a CallbackPayload.
// Missing or unexpected values fall back to safe defaults: status becomes
// "failed" and numeric fields become 0.
func CallbackData(data map[string]string) provider.CallbackPayload {
	status := data["status"]
	if status != statusSuccess && status != statusFailed {
		status = statusFailed
	}

	return provider.CallbackPayload{
		MerchantOid:      MerchantOid(data["merchant_oid"]),
		Status:           status,
		TotalAmount:      toInt(data["total_amount"]),
		Hash:             data["hash"],
		FailedReasonCode: toInt(data["failed_reason_code"]),
		FailedReasonMsg:  Text(data["failed_reason_msg"], 500),
		TestMode:         toInt(data["test_mode"]),
		PaymentType:      Text(data["payment_type"], 50),
	}
}

// Coercion helpers

func toFloat(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case json.Number:
		return parseLeadingFloat(string(v))
	case string:
		return parseLeadingFloat(v)
	default:
		return 0
	}
}

func parseLeadingFloat(s string) float64 {
	match := leadingNumber.FindString(s)
	if match == "" {
		return 0
	}
	// ParseFloat returns ±Inf with a range error for huge values; callers
	// handle infinities.
	f, _ := strconv.ParseFloat(strings.TrimLeft(match, " \t\n\r\v\f"), 64)
	return f
}

func toInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	}

	f := math.Trunc(toFloat(value))
	switch {
	case math.IsNaN(f):
		return 0
	case f >= float64(maxInt):
		return maxInt
	case f <= float64(minInt):
		return minInt
	}
	return int(f)
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "1"
		}
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
