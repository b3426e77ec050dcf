package visual

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/scamshield/internal/backend"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
)

const gridStyle = "Photorealistic, soft key light with subtle fill, neutral grey studio backdrop. " +
	"Same character in all four panels with consistent lighting, rendering, proportions and attire. No text in image."

// Config holds the models, output root and clip polling bounds.
type Config struct {
	ImageModel   string
	VideoModel   string
	OutputDir    string
	PollInterval time.Duration
	PollTimeout  time.Duration
	// Parallel bounds concurrent reference grid and clip generations.
	Parallel int
}

// DefaultConfig returns the stock models and a 10s/600s clip poll.
func DefaultConfig() Config {
	return Config{
		ImageModel:   "gemini-2.5-flash-image",
		VideoModel:   "veo-3.1-fast-generate-preview",
		OutputDir:    "output",
		PollInterval: 10 * time.Second,
		PollTimeout:  600 * time.Second,
		Parallel:     3,
	}
}

// SaveFunc persists a checkpoint after each finished step.
type SaveFunc func(ctx context.Context, v state.VisualState) error

// Pipeline runs the visual steps for one session at a time; separate
// sessions may share a Pipeline concurrently.
type Pipeline struct {
	runner *stage.Runner
	defs   *stage.Registry
	images backend.ImageGenerator
	video  backend.VideoGenerator
	caller *backend.Caller
	cfg    Config
	log    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithCaller replaces the image and video caller.
func WithCaller(c *backend.Caller) Option {
	return func(p *Pipeline) { p.caller = c }
}

// New returns a Pipeline. Text steps run through runner with definitions
// from defs; image and clip calls use the image retry policy.
func New(runner *stage.Runner, defs *stage.Registry, images backend.ImageGenerator, video backend.VideoGenerator, cfg Config, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.ImageModel == "" {
		cfg.ImageModel = def.ImageModel
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = def.VideoModel
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = def.Parallel
	}
	p := &Pipeline{
		runner: runner,
		defs:   defs,
		images: images,
		video:  video,
		cfg:    cfg,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.caller == nil {
		p.caller = backend.NewCaller(backend.ImagePolicy(), backend.WithLogger(p.log))
	}
	return p
}

// Run continues from prev and returns the new checkpoint. Steps whose output
// is already in prev are reused without a backend call. On error the
// returned state holds every step that finished plus whatever the failed
// step completed; LastStep never names the failed step.
func (p *Pipeline) Run(ctx context.Context, in Input, prev state.VisualState, save SaveFunc) (state.VisualState, error) {
	if in.SessionID == "" {
		return prev, failure.Precondition("visual", "session id is required")
	}
	if len(in.Scenes) == 0 && prev.Script == nil {
		return prev, failure.Precondition("visual", "an approved script with scenes is required")
	}
	if in.StopAfter != "" && in.StopAfter.index() < 0 {
		return prev, failure.Precondition("visual", "unknown step %q", in.StopAfter)
	}

	v := prev
	base := filepath.Join(p.cfg.OutputDir, in.SessionID)
	log := p.log.With(zap.String("session", in.SessionID))

	steps := []struct {
		step Step
		run  func(ctx context.Context, v *state.VisualState) error
	}{
		{StepStory, func(ctx context.Context, v *state.VisualState) error { return p.story(ctx, in, v) }},
		{StepScript, func(ctx context.Context, v *state.VisualState) error { return p.script(ctx, in, v) }},
		{StepCharacters, p.characters},
		{StepCharRefs, func(ctx context.Context, v *state.VisualState) error {
			return p.characterRefs(ctx, filepath.Join(base, dirCharacterRefs), v)
		}},
		{StepClipRefs, func(ctx context.Context, v *state.VisualState) error {
			return p.clipRefs(ctx, filepath.Join(base, dirClipRefs), v)
		}},
		{StepVeo, func(ctx context.Context, v *state.VisualState) error {
			return p.clips(ctx, filepath.Join(base, dirClips), v)
		}},
	}

	for _, s := range steps {
		if done(v, s.step) {
			log.Debug("visual: reusing checkpoint", zap.String("step", string(s.step)))
		} else {
			if err := ctx.Err(); err != nil {
				return v, failure.Fatal("visual", err)
			}
			log.Info("visual: step started", zap.String("step", string(s.step)))
			next := v
			if err := s.run(ctx, &next); err != nil {
				log.Warn("visual: step failed", zap.String("step", string(s.step)), zap.Error(err))
				// Partial output (finished clips, frame prompts) is kept
				// without marking the step done, so a rerun only redoes
				// what is missing.
				v = next
				if save != nil {
					if serr := save(context.WithoutCancel(ctx), v); serr != nil {
						log.Warn("visual: save partial checkpoint", zap.Error(serr))
					}
				}
				return v, failure.Normalize("visual."+string(s.step), err)
			}
			next.LastStep = string(s.step)
			v = next
			if save != nil {
				if err := save(ctx, v); err != nil {
					return v, fmt.Errorf("visual: save checkpoint: %w", err)
				}
			}
		}
		if s.step == in.StopAfter {
			log.Info("visual: stopped after step", zap.String("step", string(s.step)))
			break
		}
	}
	return v, nil
}

func (p *Pipeline) text(ctx context.Context, name string, in any) (any, error) {
	def, err := p.defs.Get(name)
	if err != nil {
		return nil, failure.Fatal(name, err)
	}
	res := p.runner.Run(ctx, def, in)
	if !res.Success {
		return nil, res.Err
	}
	return res.Output, nil
}

func (p *Pipeline) story(ctx context.Context, in Input, v *state.VisualState) error {
	out, err := p.text(ctx, stage.NameStory, stage.StoryInput{FactSheet: in.FactSheet, Scenes: in.Scenes})
	if err != nil {
		return err
	}
	st := out.(record.Story)
	v.Story = &st
	return nil
}

func (p *Pipeline) script(ctx context.Context, in Input, v *state.VisualState) error {
	out, err := p.text(ctx, stage.NameVeoScript, stage.VeoScriptInput{Story: *v.Story, Scenes: in.Scenes})
	if err != nil {
		return err
	}
	vs := out.(record.VeoScript)
	v.Script = &vs
	return nil
}

func (p *Pipeline) characters(ctx context.Context, v *state.VisualState) error {
	out, err := p.text(ctx, stage.NameCharacters, stage.CharactersInput{Story: *v.Story, Script: *v.Script})
	if err != nil {
		return err
	}
	cd := out.(record.CharacterDescriptions)
	v.Characters = &cd
	return nil
}

func gridPrompt(c record.CharacterDescription) string {
	return "A photorealistic 2x2 split-screen character reference sheet. " +
		"The SAME character appears in all four panels. " +
		"Character: " + c.DescriptionForImageGeneration + " " +
		"Standing, neutral pose, full body in each panel. " +
		"Panel 1 (Top Left): Front view. Panel 2 (Top Right): Back view. " +
		"Panel 3 (Bottom Left): Left profile view. Panel 4 (Bottom Right): Right profile view. " +
		gridStyle + " 1:1 aspect ratio for the grid."
}

func (p *Pipeline) image(ctx context.Context, op string, req backend.ImageRequest) ([]byte, error) {
	req.Model = p.cfg.ImageModel
	return backend.Call(ctx, p.caller, op, func(ctx context.Context) ([]byte, error) {
		return p.images.GenerateImage(ctx, req)
	})
}

// characterRefs renders one reference grid per character, several at a time.
// A character the model returns no image for is skipped.
func (p *Pipeline) characterRefs(ctx context.Context, dir string, v *state.VisualState) error {
	chars := v.Characters.Characters
	refs := make([]*record.CharacterRef, len(chars))
	roles := make([]string, len(chars))
	for i, c := range chars {
		roles[i] = c.Role
	}
	names := gridFilenames(roles)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallel)
	for i, c := range chars {
		g.Go(func() error {
			img, err := p.image(gctx, "visual.char_ref", backend.ImageRequest{Prompt: gridPrompt(c), AspectRatio: aspectGrid})
			if err != nil {
				return err
			}
			if img == nil {
				p.log.Warn("visual: no reference image returned", zap.String("role", c.Role))
				return nil
			}
			name := names[i]
			path, err := writeAsset(dir, name, img)
			if err != nil {
				return err
			}
			refs[i] = &record.CharacterRef{Role: c.Role, Description: c.DescriptionForImageGeneration, Filename: name, Path: path}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := make([]record.CharacterRef, 0, len(refs))
	for _, r := range refs {
		if r != nil {
			out = append(out, *r)
		}
	}
	v.CharacterRefs = out
	return writeIndex(dir, out)
}

func (p *Pipeline) roleImages(ctx context.Context, refs []record.CharacterRef, roles []string) ([][]byte, error) {
	byRole := make(map[string]string, len(refs))
	for _, r := range refs {
		byRole[r.Role] = r.Path
	}
	var out [][]byte
	for _, role := range roles {
		data, err := readAsset(byRole[role])
		if err != nil {
			return nil, err
		}
		if data != nil {
			out = append(out, data)
		}
	}
	return out, nil
}

// clipRefs writes frame prompts for every segment, then renders the frames
// in segment order. A start frame uses the previous segment's end frame and
// the character grids as references; an end frame uses its start frame.
func (p *Pipeline) clipRefs(ctx context.Context, dir string, v *state.VisualState) error {
	segments := v.Script.Segments
	if len(v.ClipPrompts) != len(segments) {
		prompts := make([]record.ClipFramePrompts, 0, len(segments))
		for _, seg := range segments {
			out, err := p.text(ctx, stage.NameClipPrompts, stage.ClipPromptsInput{Script: *v.Script, SegmentIndex: seg.SegmentIndex})
			if err != nil {
				return err
			}
			prompts = append(prompts, out.(record.ClipFramePrompts))
		}
		v.ClipPrompts = prompts
	}
	bySegment := make(map[int]record.ClipFramePrompts, len(v.ClipPrompts))
	for _, cp := range v.ClipPrompts {
		bySegment[cp.SegmentIndex] = cp
	}

	var entries []record.ClipRef
	var prevEnd []byte
	for _, seg := range segments {
		cp, ok := bySegment[seg.SegmentIndex]
		if !ok {
			continue
		}
		refs, err := p.roleImages(ctx, v.CharacterRefs, seg.CharactersInvolved)
		if err != nil {
			return err
		}

		startPrompt := cp.StartFramePrompt
		if prevEnd != nil {
			startPrompt = "The first image is the end of the previous segment. " +
				"Use it as scene reference; create the start frame of this segment as follows. " + startPrompt
			refs = append([][]byte{prevEnd}, refs...)
		}
		start, err := p.image(ctx, "visual.clip_ref", backend.ImageRequest{
			Prompt: "Create the START frame for this clip. " + startPrompt +
				" IMPORTANT: Any featureless/anonymous humanoid must remain featureless. No text in image.",
			References:  refs,
			AspectRatio: aspectFrame,
		})
		if err != nil {
			return err
		}
		prevEnd = nil
		if start == nil {
			p.log.Warn("visual: no start frame returned", zap.Int("segment", seg.SegmentIndex))
			continue
		}
		name := frameFilename(seg.SegmentIndex, "start")
		path, err := writeAsset(dir, name, start)
		if err != nil {
			return err
		}
		entries = append(entries, record.ClipRef{SegmentIndex: seg.SegmentIndex, Frame: "start", Filename: name, Path: path})

		end, err := p.image(ctx, "visual.clip_ref", backend.ImageRequest{
			Prompt: "Using the provided reference image (start frame), create the END frame: " + cp.EndFramePrompt +
				" IMPORTANT: Keep any featureless humanoid characters as-is. No text in image.",
			References:  [][]byte{start},
			AspectRatio: aspectFrame,
		})
		if err != nil {
			return err
		}
		if end == nil {
			p.log.Warn("visual: no end frame returned", zap.Int("segment", seg.SegmentIndex))
			continue
		}
		name = frameFilename(seg.SegmentIndex, "end")
		path, err = writeAsset(dir, name, end)
		if err != nil {
			return err
		}
		entries = append(entries, record.ClipRef{SegmentIndex: seg.SegmentIndex, Frame: "end", Filename: name, Path: path})
		prevEnd = end
	}
	if entries == nil {
		entries = []record.ClipRef{}
	}
	v.ClipRefs = entries
	return writeIndex(dir, entries)
}

// videoRequest builds the clip submission for seg. With a start frame the
// clip interpolates between frames and character references are left out.
func (p *Pipeline) videoRequest(ctx context.Context, seg record.ScriptSegment, v *state.VisualState) (backend.VideoRequest, error) {
	req := backend.VideoRequest{Model: p.cfg.VideoModel, Prompt: seg.VeoPrompt, AspectRatio: aspectFrame}
	if len(seg.CharactersInvolved) > 0 {
		req.Prompt = fmt.Sprintf("Using the provided reference images of (%s), %s", strings.Join(seg.CharactersInvolved, ", "), seg.VeoPrompt)
	}
	for _, cr := range v.ClipRefs {
		if cr.SegmentIndex != seg.SegmentIndex {
			continue
		}
		data, err := readAsset(cr.Path)
		if err != nil {
			return req, err
		}
		switch cr.Frame {
		case "start":
			req.FirstFrame = data
		case "end":
			req.LastFrame = data
		}
	}
	if req.FirstFrame == nil {
		refs, err := p.roleImages(ctx, v.CharacterRefs, seg.CharactersInvolved)
		if err != nil {
			return req, err
		}
		if len(refs) > 3 {
			refs = refs[:3]
		}
		req.References = refs
	}
	return req, nil
}

func (p *Pipeline) clip(ctx context.Context, dir string, seg record.ScriptSegment, v *state.VisualState) (*record.VeoClip, error) {
	req, err := p.videoRequest(ctx, seg, v)
	if err != nil {
		return nil, err
	}
	op := fmt.Sprintf("visual.veo.segment_%d", seg.SegmentIndex)
	handle, err := backend.Call(ctx, p.caller, op, func(ctx context.Context) (string, error) {
		return p.video.SubmitVideo(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	st, err := p.caller.Poll(ctx, op, p.video, handle, p.cfg.PollInterval, p.cfg.PollTimeout)
	if err != nil {
		return nil, err
	}
	data, err := backend.Call(ctx, p.caller, op, func(ctx context.Context) ([]byte, error) {
		return p.video.FetchVideo(ctx, st.Result)
	})
	if err != nil {
		return nil, err
	}
	name := clipFilename(seg.SegmentIndex)
	path, err := writeAsset(dir, name, data)
	if err != nil {
		return nil, err
	}
	return &record.VeoClip{SegmentIndex: seg.SegmentIndex, Filename: name, Path: path, EstimatedCostUSD: ClipCostUSD}, nil
}

// clips generates one clip per segment. Clips already in v whose file is on
// disk are kept; only the missing segments are submitted. When a segment's
// job fails or times out the finished clips are still recorded in v and the
// failures come back joined, keeping KindTimeout so the step can be polled
// again.
func (p *Pipeline) clips(ctx context.Context, dir string, v *state.VisualState) error {
	segments := v.Script.Segments
	have := make(map[int]record.VeoClip, len(v.Clips))
	for _, c := range v.Clips {
		if data, err := readAsset(c.Path); err == nil && data != nil {
			have[c.SegmentIndex] = c
		}
	}

	out := make([]*record.VeoClip, len(segments))
	errs := make([]error, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallel)
	for i, seg := range segments {
		if c, ok := have[seg.SegmentIndex]; ok {
			out[i] = &c
			continue
		}
		g.Go(func() error {
			c, err := p.clip(gctx, dir, seg, v)
			if err != nil {
				if _, ok := failure.As(err); !ok || gctx.Err() != nil {
					return err
				}
				p.log.Warn("visual: clip failed", zap.Int("segment", seg.SegmentIndex), zap.Error(err))
				errs[i] = err
				return nil
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	clips := make([]record.VeoClip, 0, len(out))
	var total float64
	for _, c := range out {
		if c != nil {
			clips = append(clips, *c)
			total += c.EstimatedCostUSD
		}
	}
	v.Clips = clips
	if err := writeIndex(dir, clips); err != nil {
		return err
	}
	if err := failure.Join("visual.veo", errs...); err != nil {
		p.log.Warn("visual: clips incomplete", zap.Int("clips", len(clips)), zap.Int("segments", len(segments)))
		return err
	}
	p.log.Info("visual: clips generated", zap.Int("clips", len(clips)), zap.Float64("estimated_cost_usd", total))
	return nil
}
