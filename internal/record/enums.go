// Package record holds the typed records exchanged between pipeline stages.
package record

import (
	"fmt"
	"strings"
)

// Category is the scam classification attached to a fact sheet.
type Category string

const (
	CategoryDigitalArrest Category = "Digital Arrest"
	CategoryImpersonation Category = "Impersonation"
	CategoryPhishing      Category = "Phishing"
	CategoryBankingFraud  Category = "Banking Fraud"
	CategoryLoveScam      Category = "Love Scam"
	CategoryInvestment    Category = "Investment Scam"
	CategoryParcel        Category = "Parcel/Delivery Scam"
	CategoryJobScam       Category = "Job Scam"
	CategoryECommerce     Category = "E-Commerce Scam"
	CategoryOther         Category = "Other"
)

var categoryAliases = map[string]Category{
	"digital arrest":       CategoryDigitalArrest,
	"impersonation":        CategoryImpersonation,
	"phishing":             CategoryPhishing,
	"banking fraud":        CategoryBankingFraud,
	"love scam":            CategoryLoveScam,
	"investment scam":      CategoryInvestment,
	"parcel/delivery scam": CategoryParcel,
	"parcel scam":          CategoryParcel,
	"delivery scam":        CategoryParcel,
	"job scam":             CategoryJobScam,
	"e-commerce scam":      CategoryECommerce,
	"e-commerce":           CategoryECommerce,
	"other":                CategoryOther,
}

// MapCategory maps free text to a Category. Unmatched text maps to
// CategoryOther with ok=false so the caller can log it.
func MapCategory(s string) (c Category, ok bool) {
	c, ok = categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return CategoryOther, false
	}
	return c, true
}

// Key returns the lower_snake form used in project ids.
func (c Category) Key() string {
	r := strings.NewReplacer(" ", "_", "/", "_", "-", "_")
	return strings.ToLower(r.Replace(string(c)))
}

// Language is a target language for generated content.
type Language string

const (
	LanguageMalay      Language = "Bahasa Melayu"
	LanguageMalayUrban Language = "Bahasa Melayu (Urban)"
	LanguageEnglish    Language = "English"
	LanguageMandarin   Language = "Chinese (Mandarin)"
	LanguageCantonese  Language = "Chinese (Cantonese)"
	LanguageTamil      Language = "Tamil"
)

var languageCodes = map[Language]string{
	LanguageMalay:      "bm",
	LanguageMalayUrban: "bm",
	LanguageEnglish:    "en",
	LanguageMandarin:   "zh",
	LanguageCantonese:  "zh_yue",
	LanguageTamil:      "ta",
}

// Code returns the short key used for per-language package entries. Unknown
// languages fall back to "en".
func (l Language) Code() string {
	if c, ok := languageCodes[l]; ok {
		return c
	}
	return "en"
}

// ParseLanguage resolves a display name or code. Unknown values fall back to
// English.
func ParseLanguage(s string) Language {
	s = strings.TrimSpace(s)
	for l, code := range languageCodes {
		if strings.EqualFold(string(l), s) || (code == strings.ToLower(s) && l != LanguageMalayUrban) {
			return l
		}
	}
	return LanguageEnglish
}

// Tone of the generated video.
type Tone string

const (
	ToneUrgent        Tone = "Urgent/Warning"
	ToneCalm          Tone = "Calm"
	ToneFriendly      Tone = "Friendly"
	ToneAuthoritative Tone = "Authoritative"
	ToneHighEnergy    Tone = "High Energy"
)

type TargetAudience string

const (
	AudienceElderly       TargetAudience = "Elderly"
	AudienceStudents      TargetAudience = "Students"
	AudienceProfessionals TargetAudience = "Professionals"
	AudienceShoppers      TargetAudience = "Online Shoppers"
	AudienceGeneral       TargetAudience = "General Public"
)

// InputSource describes where an intake report came from.
type InputSource string

const (
	SourceNewsURL           InputSource = "news_url"
	SourcePoliceReport      InputSource = "police_report"
	SourceManualDescription InputSource = "manual_description"
	SourceTrendingNewsroom  InputSource = "trending_newsroom"
)

// ParseInputSource validates s. Empty means a manual description.
func ParseInputSource(s string) (InputSource, error) {
	switch src := InputSource(strings.ToLower(strings.TrimSpace(s))); src {
	case "":
		return SourceManualDescription, nil
	case SourceManualDescription, SourceNewsURL, SourcePoliceReport, SourceTrendingNewsroom:
		return src, nil
	}
	return "", fmt.Errorf("unknown source type %q", s)
}
