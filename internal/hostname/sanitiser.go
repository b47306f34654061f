// Package hostname cleans client-supplied host names (option 12) before they
// are written to the event bus and the audit journal. Clients send emoji,
// spaces, control characters and placeholder names like "localhost".
package hostname

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/miekg/dns"
)

// MaxLength is the DNS label limit applied to cleaned names.
const MaxLength = 63

// placeholders are names that identify nothing and are dropped.
var placeholders = func() []*regexp.Regexp {
	patterns := []string{
		`^localhost$`,
		`^localhost\.localdomain$`,
		`^android-[a-f0-9]{12,}$`,
		`^galaxy-[a-f0-9]+$`,
		`^iphone$`,
		`^ipad$`,
		`^host$`,
		`^dhcp$`,
		`^unknown$`,
		`^none$`,
		`^null$`,
		`^default$`,
		`^changeme$`,
	}
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile("(?i)" + p)
	}
	return res
}()

// Sanitise returns a lower-case DNS-safe form of name, or "" when nothing
// usable is left.
func Sanitise(name string) string {
	name = stripControlChars(name)
	name = stripEmoji(name)
	name = stripInvalidDNS(name)
	name = strings.ToLower(name)
	name = strings.Trim(name, ".-")
	name = collapseRepeated(name)

	if len(name) > MaxLength {
		name = strings.TrimRight(name[:MaxLength], ".-")
	}
	if name == "" || isPlaceholder(name) {
		return ""
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return ""
	}
	return name
}

func isPlaceholder(name string) bool {
	for _, re := range placeholders {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// stripControlChars removes ASCII control characters and non-printable runes.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripEmoji removes emoji and other symbol runes.
func stripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !isEmoji(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isEmoji(r rune) bool {
	if r < 128 {
		return false
	}
	return unicode.Is(unicode.So, r) || // Other_Symbol (most emoji)
		unicode.Is(unicode.Sk, r) || // Modifier_Symbol
		(r >= 0x1F600 && r <= 0x1F64F) || // Emoticons
		(r >= 0x1F300 && r <= 0x1F5FF) || // Misc Symbols and Pictographs
		(r >= 0x1F900 && r <= 0x1F9FF) || // Supplemental Symbols
		(r >= 0xFE00 && r <= 0xFE0F) || // Variation Selectors
		r == 0x200D // Zero-width joiner
}

// stripInvalidDNS keeps only a-z, A-Z, 0-9, hyphen and dot (RFC 952/1123).
func stripInvalidDNS(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range []byte(s) {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '.' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// collapseRepeated collapses runs of dots or hyphens into one.
func collapseRepeated(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c == '.' || c == '-') && c == prev {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String()
}
