package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSheet() FactSheet {
	return FactSheet{
		ScamName:         "Fake Courier Call",
		StoryHook:        "A retiree lost RM50k to a fake courier call",
		RedFlag:          "Caller transfers you to a 'police officer'",
		TheFix:           "Hang up and call 997",
		ReferenceSources: []string{"https://semakmule.rmp.gov.my"},
		Category:         CategoryParcel,
	}
}

func TestFactSheet_VerifyOnce(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fs := sampleSheet()

	v, err := fs.Verify("OFC-001", "checked", at)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, "OFC-001", v.VerifierID)
	require.NotNil(t, v.VerifiedAt)
	assert.Equal(t, at, *v.VerifiedAt)
	assert.False(t, fs.Verified, "receiver must not change")

	_, err = v.Verify("OFC-002", "", at)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestFactSheet_ApplyCreatesNewRevision(t *testing.T) {
	v, err := sampleSheet().Verify("OFC-001", "", time.Now())
	require.NoError(t, err)

	name := "Pos Laju Impersonation"
	cat := "delivery scam"
	sources := []string{"https://example.org/a"}
	next := v.Apply(&Corrections{ScamName: &name, Category: &cat, ReferenceSources: &sources})

	assert.False(t, next.Verified)
	assert.Empty(t, next.VerifierID)
	assert.Nil(t, next.VerifiedAt)
	assert.Equal(t, v.Revision+1, next.Revision)
	assert.Equal(t, name, next.ScamName)
	assert.Equal(t, CategoryParcel, next.Category)

	sources[0] = "mutated"
	assert.Equal(t, "https://example.org/a", next.ReferenceSources[0])
	assert.Equal(t, "Fake Courier Call", v.ScamName)
	assert.True(t, v.Verified)
}

func TestFactSheet_Validate(t *testing.T) {
	assert.NoError(t, sampleSheet().Validate())
	fs := sampleSheet()
	fs.RedFlag = " "
	fs.TheFix = ""
	assert.EqualError(t, fs.Validate(), "fact sheet missing red_flag, the_fix")
}

func TestMapCategory(t *testing.T) {
	cases := map[string]Category{
		"Digital Arrest":   CategoryDigitalArrest,
		"parcel scam":      CategoryParcel,
		"Delivery Scam":    CategoryParcel,
		"E-Commerce":       CategoryECommerce,
		" investment scam": CategoryInvestment,
	}
	for in, want := range cases {
		got, ok := MapCategory(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := MapCategory("Crypto Pig Butchering")
	assert.False(t, ok)
	assert.Equal(t, CategoryOther, got)
	assert.Equal(t, "parcel_delivery_scam", CategoryParcel.Key())
}

func TestLanguageCode(t *testing.T) {
	assert.Equal(t, "bm", LanguageMalayUrban.Code())
	assert.Equal(t, "zh_yue", LanguageCantonese.Code())
	assert.Equal(t, "en", Language("Klingon").Code())
	assert.Equal(t, LanguageTamil, ParseLanguage("ta"))
	assert.Equal(t, LanguageMandarin, ParseLanguage("chinese (mandarin)"))
	assert.Equal(t, LanguageEnglish, ParseLanguage("unknown"))
}

func TestCreatorConfig_Duration(t *testing.T) {
	c := DefaultCreatorConfig()
	assert.Equal(t, 30, c.Duration())
	assert.Equal(t, 3, c.SceneCount())

	c.VideoFormat = FormatStory
	c.VideoDurationSeconds = 45
	assert.Equal(t, 15, c.Duration())

	c.VideoFormat = FormatPost
	assert.Equal(t, 45, c.Duration())
	assert.Equal(t, 5, c.SceneCount())

	c.VideoDurationSeconds = 4
	assert.Error(t, c.Validate())
}

func TestScene_ExtraFieldsSurviveRoundTrip(t *testing.T) {
	raw := `{"scene_id":1,"duration_est_seconds":6.4,"visual_prompt":"v","audio_script":"a","camera":"dolly","props":["phone"]}`
	var s Scene
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, 6, s.DurationEstSeconds)
	assert.Equal(t, "dolly", s.Extra["camera"])

	out, err := json.Marshal(s)
	require.NoError(t, err)
	var back Scene
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, s, back)
}

func TestNewScamReport_RequiresVerification(t *testing.T) {
	_, err := NewScamReport(sampleSheet(), SeverityHigh)
	require.Error(t, err)

	v, err := sampleSheet().Verify("OFC-001", "elderly targeted", time.Now())
	require.NoError(t, err)
	r, err := NewScamReport(v, SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, "A retiree lost RM50k to a fake courier call elderly targeted", r.Description)
	assert.Equal(t, SeverityHigh, r.Severity)

	_, err = ParseSeverity("extreme")
	assert.Error(t, err)
	sev, err := ParseSeverity("")
	require.NoError(t, err)
	assert.Equal(t, SeverityMedium, sev)
}

func TestHashtagStrategy_Normalize(t *testing.T) {
	h := HashtagStrategy{PrimaryHashtags: []string{"#AntiScam"}, BrandedHashtags: []string{"#PDRM", "#ScamShield"}}
	h.Normalize()
	assert.Equal(t, 3, h.TotalCount)
	assert.Equal(t, "#AntiScam #PDRM #ScamShield", h.HashtagString)
}

func TestParseInputSource(t *testing.T) {
	src, err := ParseInputSource("")
	require.NoError(t, err)
	assert.Equal(t, SourceManualDescription, src)

	src, err = ParseInputSource(" News_URL ")
	require.NoError(t, err)
	assert.Equal(t, SourceNewsURL, src)

	_, err = ParseInputSource("fax")
	assert.Error(t, err)
}
