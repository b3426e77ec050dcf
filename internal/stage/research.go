package stage

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/extract"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
)

// ResearchInput is the intake a fact sheet is researched from.
type ResearchInput struct {
	Intake record.IntakeInput
}

// NotRecovered fills fact sheet fields the regex fallback could not find.
// It must never read as advice to the public.
const NotRecovered = "[Not recovered from research output]"

// factFields drives the regex fallback. Defaults are placeholders, never
// findings.
var factFields = []extract.FieldSpec{
	{Name: "scam_name", Default: NotRecovered, Required: true},
	{Name: "story_hook", Default: NotRecovered},
	{Name: "red_flag", Default: NotRecovered, Required: true},
	{Name: "the_fix", Default: NotRecovered, Required: true},
	{Name: "reference_sources", Kind: extract.List},
	{Name: "category", Default: string(record.CategoryOther)},
	{Name: "global_ancestry"},
	{Name: "psychological_exploit"},
	{Name: "victim_profile"},
	{Name: "counter_hack"},
}

type factSheetWire struct {
	ScamName             string     `json:"scam_name"`
	StoryHook            string     `json:"story_hook"`
	RedFlag              string     `json:"red_flag"`
	TheFix               string     `json:"the_fix"`
	ReferenceSources     stringList `json:"reference_sources"`
	Category             string     `json:"category"`
	GlobalAncestry       string     `json:"global_ancestry"`
	PsychologicalExploit string     `json:"psychological_exploit"`
	VictimProfile        string     `json:"victim_profile"`
	CounterHack          string     `json:"counter_hack"`
}

func (w factSheetWire) sheet() record.FactSheet {
	cat, ok := record.MapCategory(w.Category)
	f := record.FactSheet{
		ScamName:             strings.TrimSpace(w.ScamName),
		StoryHook:            strings.TrimSpace(w.StoryHook),
		RedFlag:              strings.TrimSpace(w.RedFlag),
		TheFix:               strings.TrimSpace(w.TheFix),
		ReferenceSources:     []string(w.ReferenceSources),
		Category:             cat,
		GlobalAncestry:       w.GlobalAncestry,
		PsychologicalExploit: w.PsychologicalExploit,
		VictimProfile:        w.VictimProfile,
		CounterHack:          w.CounterHack,
	}
	if !ok && !blank(w.Category) {
		f.CategoryRaw = w.Category
	}
	if f.ReferenceSources == nil {
		f.ReferenceSources = []string{}
	}
	return f
}

var categoryChoices = func() string {
	cats := []record.Category{
		record.CategoryDigitalArrest, record.CategoryImpersonation, record.CategoryPhishing,
		record.CategoryBankingFraud, record.CategoryLoveScam, record.CategoryInvestment,
		record.CategoryParcel, record.CategoryJobScam, record.CategoryECommerce, record.CategoryOther,
	}
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}()

func factSheetSchema(deep bool) *backend.Schema {
	props := map[string]*backend.Schema{
		"scam_name":         backend.String("Official name of this scam type"),
		"story_hook":        backend.String("How the scammer approaches victims, 2-3 sentences"),
		"red_flag":          backend.String("The key warning sign, 1-2 sentences"),
		"the_fix":           backend.String("What the victim should do, with helpline numbers"),
		"reference_sources": backend.StringList("URLs or official sources"),
		"category":          backend.String("One of: " + categoryChoices),
	}
	if deep {
		props["global_ancestry"] = backend.String("Where the scam originated and how it reached Malaysia")
		props["psychological_exploit"] = backend.String("Cognitive biases the scam weaponizes")
		props["victim_profile"] = backend.String("Who is most vulnerable and why")
		props["counter_hack"] = backend.String("Narrative intervention that breaks the scam's hold")
	}
	return backend.Object(props, "scam_name", "story_hook", "red_flag", "the_fix", "category")
}

const researchSystem = `You are a scam research analyst for Scam Shield, a Malaysian government programme producing anti-scam awareness videos for vulnerable audiences in Malay, English, Chinese and Tamil.
Analyse the report, check it against what official Malaysian sources (PDRM, MCMC, BNM, LHDN) say about the pattern, and summarise it as a fact sheet an officer can verify.
Use Malaysian context: RM amounts, local agencies, the 997 police hotline. Never invent URLs; leave reference_sources empty if you have none.`

var sourceGuidance = map[record.InputSource]string{
	record.SourceNewsURL:           "The input is a news article. Identify the pattern and reported victims, and cross-check with official warnings.",
	record.SourcePoliceReport:      "The input is a police report. Extract the modus operandi and any unusual tactics, and match it to known patterns.",
	record.SourceManualDescription: "The input is an officer's description. Identify the scam type and fill gaps from official advisories.",
	record.SourceTrendingNewsroom:  "The input is a trending newsroom item. Confirm the pattern is current before summarising it.",
}

func researchPrompt(in ResearchInput, deep bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source type: %s\n", in.Intake.SourceType)
	fmt.Fprintf(&b, "Content:\n%s\n", strings.TrimSpace(in.Intake.Content))
	if !blank(in.Intake.AdditionalContext) {
		fmt.Fprintf(&b, "Additional context: %s\n", in.Intake.AdditionalContext)
	}
	if g, ok := sourceGuidance[in.Intake.SourceType]; ok {
		b.WriteString("\n" + g + "\n")
	}
	b.WriteString(`
Produce a JSON object with:
- scam_name: the common name of this scam type
- story_hook: what the scammer does and claims, 2-3 sentences a potential victim would recognise
- red_flag: the one warning sign that gives it away, short and memorable
- the_fix: concrete steps to take, including helpline numbers
- reference_sources: list of verifying URLs or official sources
- category: one of ` + categoryChoices + "\n")
	if deep {
		b.WriteString(`- global_ancestry: where the scam started, earlier variants and how it was localised for Malaysia
- psychological_exploit: the named cognitive biases it relies on and how the pressure works
- victim_profile: the demographics most exposed and why
- counter_hack: the behavioural intervention that breaks the victim's trance, and why it works against this exploit
`)
	}
	b.WriteString("\nYour final answer must contain the JSON object.")
	return b.String()
}

type research struct {
	s Settings
}

// NewResearch returns the standard research stage.
func NewResearch(s Settings) Definition { return research{s: s} }

func (research) Name() string { return NameResearch }

func (d research) Validate(in any) error {
	r, err := inputAs[ResearchInput](d.Name(), in)
	if err != nil {
		return err
	}
	if err := r.Intake.Validate(); err != nil {
		return failure.Precondition(d.Name(), "%s", err)
	}
	return nil
}

func (d research) BuildRequest(in any, note string) (backend.TextRequest, error) {
	return d.request(in, note, false)
}

func (d research) request(in any, note string, deep bool) (backend.TextRequest, error) {
	r, err := inputAs[ResearchInput](d.Name(), in)
	if err != nil {
		return backend.TextRequest{}, err
	}
	req := backend.TextRequest{
		System: researchSystem,
		Prompt: withNote(researchPrompt(r, deep), note),
		JSON:   true,
		Schema: factSheetSchema(deep),
	}
	d.s.apply(&req)
	return req, nil
}

func (d research) Parse(raw string, _ any) (any, extract.Strategy, error) {
	var w factSheetWire
	strategy, err := extract.Decode(raw, factFields, &w)
	if err != nil {
		return nil, strategy, err
	}
	f := w.sheet()
	f.LowConfidence = strategy.Degraded()
	if err := f.Validate(); err != nil {
		return nil, strategy, failure.Extraction(err.Error(), raw)
	}
	return f, strategy, nil
}

// deepResearch streams a long-running research agent job. Its plain text
// request is the standard research prompt with the deep fields requested,
// used when the streamed report cannot be parsed.
type deepResearch struct {
	research
	agent string
}

// NewDeepResearch returns the streamed deep-research stage.
func NewDeepResearch(s Settings, agent string) Definition {
	return deepResearch{research: research{s: s}, agent: agent}
}

func (deepResearch) Name() string { return NameDeepResearch }

func (d deepResearch) BuildRequest(in any, note string) (backend.TextRequest, error) {
	return d.request(in, note, true)
}

func (d deepResearch) BuildStream(in any) (backend.StreamRequest, error) {
	r, err := inputAs[ResearchInput](d.Name(), in)
	if err != nil {
		return backend.StreamRequest{}, err
	}
	return backend.StreamRequest{
		Agent:  d.agent,
		Prompt: researchSystem + "\n\n" + researchPrompt(r, true),
	}, nil
}
