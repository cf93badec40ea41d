package deeplink

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/LeventeLantos/wa-scheduler/internal/model"
)

const defaultHost = "api.whatsapp.com"

var (
	punctuation = regexp.MustCompile(`[\s\-().]`)
	nonDialable = regexp.MustCompile(`[^\d+]`)
	nationalNum = regexp.MustCompile(`^0\d{9}$`)
)

type Builder struct {
	countryCode string
	hosts       map[model.App]string
}

// NewBuilder returns a link builder. countryCode is used to rewrite national
// numbers (leading trunk 0 followed by 9 digits); leave it empty to disable.
func NewBuilder(countryCode string, hosts map[model.App]string) *Builder {
	h := map[model.App]string{
		model.WhatsApp: defaultHost,
		model.Business: defaultHost,
	}
	for app, host := range hosts {
		if host != "" {
			h[app] = host
		}
	}
	return &Builder{countryCode: strings.TrimPrefix(countryCode, "+"), hosts: h}
}

// CleanPhone strips separators but keeps a leading '+'.
func CleanPhone(phone string) string {
	return punctuation.ReplaceAllString(phone, "")
}

func (b *Builder) NormalizePhone(phone string) string {
	p := CleanPhone(phone)
	switch {
	case strings.HasPrefix(p, "+"):
		p = strings.TrimPrefix(p, "+")
	case strings.HasPrefix(p, "00"):
		p = strings.TrimPrefix(p, "00")
	case b.countryCode != "" && nationalNum.MatchString(p):
		p = b.countryCode + p[1:]
	}
	return p
}

// Build composes https://<host>/send?phone=<normalized>&text=<encoded>.
func (b *Builder) Build(phone, text string, app model.App) string {
	host, ok := b.hosts[app]
	if !ok {
		host = b.hosts[model.WhatsApp]
	}
	return "https://" + host + "/send?phone=" + b.NormalizePhone(phone) + "&text=" + encodeText(text)
}

// encodeText query-escapes text with spaces written as %20 rather than '+'.
func encodeText(text string) string {
	return strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// FormatPhone renders French mobile numbers in grouped form for display.
func FormatPhone(phone string) string {
	if phone == "" {
		return ""
	}
	clean := nonDialable.ReplaceAllString(phone, "")
	if strings.HasPrefix(clean, "+33") && len(clean) == 12 {
		return "+33 " + clean[3:4] + " " + clean[4:6] + " " + clean[6:8] + " " + clean[8:10] + " " + clean[10:12]
	}
	return clean
}
