// Package normalize converts raw OS notification events into canonical
// notification records. Normalization is pure: no I/O, no stored state.
package normalize

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/seenotify/agent/internal/domain"
)

// appNames maps well-known package identifiers to display names. Unmapped
// packages fall back to the capitalized last dot-segment of the package.
var appNames = map[string]string{
	"com.whatsapp":                      "WhatsApp",
	"com.google.android.gm":             "Gmail",
	"com.google.android.calendar":       "Calendar",
	"com.slack":                         "Slack",
	"com.android.messaging":             "Messages",
	"com.instagram.android":             "Instagram",
	"com.twitter.android":               "Twitter",
	"com.discord":                       "Discord",
	"com.microsoft.teams":               "Teams",
	"com.linkedin.android":              "LinkedIn",
	"com.amazon.mShop.android.shopping": "Amazon",
}

// categoryRule pairs an ordered set of package-name substrings with the
// category assigned on first match.
type categoryRule struct {
	keywords []string
	category domain.Category
}

// categoryRules is evaluated top to bottom; the first keyword hit wins.
var categoryRules = []categoryRule{
	{keywords: []string{"mail", "gmail", "outlook", "android.gm"}, category: domain.CategoryWork},
	{keywords: []string{"whatsapp", "messenger", "telegram", "instagram", "snapchat", "twitter", "discord", "facebook"}, category: domain.CategorySocial},
	{keywords: []string{"calendar", "teams", "slack", "zoom", "linkedin", "jira"}, category: domain.CategoryWork},
	{keywords: []string{"amazon", "shopping", "store", "aliexpress", "ebay", "promo"}, category: domain.CategoryPromo},
}

// Record maps one raw event to a canonical record. It returns (nil, nil)
// when the event carries no usable content (both title and text absent),
// and an error when the package name is missing.
func Record(e domain.RawEvent) (*domain.NotificationRecord, error) {
	if strings.TrimSpace(e.PackageName) == "" {
		return nil, fmt.Errorf("%w: raw event has no package name", domain.ErrValidation)
	}
	if strings.TrimSpace(e.Title) == "" && strings.TrimSpace(e.Text) == "" {
		return nil, nil
	}

	r := &domain.NotificationRecord{
		ID:            e.CompositeID(),
		SourceApp:     AppNameFor(e.PackageName),
		SourcePackage: e.PackageName,
		Sender:        e.Title,
		Title:         e.SubText,
		Message:       e.Text,
		PostedAt:      e.PostedAt(),
		Category:      CategoryFor(e.PackageName),
	}
	if r.Sender == "" {
		r.Sender = domain.DefaultSender
	}
	if r.Title == "" {
		r.Title = domain.DefaultTitle
	}
	r.RefreshDisplayTime()

	return r, nil
}

// CategoryFor derives the display category from the package name using the
// prioritized rule table.
func CategoryFor(packageName string) domain.Category {
	pkg := strings.ToLower(packageName)
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(pkg, keyword) {
				return rule.category
			}
		}
	}
	return domain.CategoryOther
}

// AppNameFor resolves a human-readable application name for a package.
func AppNameFor(packageName string) string {
	if name, ok := appNames[packageName]; ok {
		return name
	}
	if segment := lastSegment(packageName); segment != "" {
		return capitalize(segment)
	}
	return packageName
}

func lastSegment(packageName string) string {
	parts := strings.Split(packageName, ".")
	return parts[len(parts)-1]
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
