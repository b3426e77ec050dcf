package mcptools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/orchestrator"
	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
)

// Tool statuses.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// PipelineService handles MCP tool calls by delegating to an Orchestrator.
// Malformed arguments are returned as tool errors; pipeline failures are
// reported in the output with status "failed" and the officer-facing
// message.
type PipelineService struct {
	orch *orchestrator.Orchestrator
	log  *zap.Logger
}

// NewPipelineService creates a PipelineService. A nil logger is replaced by
// a no-op one.
func NewPipelineService(orch *orchestrator.Orchestrator, log *zap.Logger) *PipelineService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PipelineService{orch: orch, log: log}
}

// failureOf returns the message and kind reported for err.
func failureOf(err error) (msg, kind string) {
	fe := failure.Normalize("mcp", err)
	return failure.UserMessage(fe), fe.Kind.String()
}

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// StartIntake records a scam report and researches its fact sheet.
func (s *PipelineService) StartIntake(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StartIntakeInput,
) (*mcp.CallToolResult, StartIntakeOutput, error) {
	src, err := record.ParseInputSource(input.SourceType)
	if err != nil {
		return nil, StartIntakeOutput{}, err
	}
	sheet, id, err := s.orch.StartIntake(ctx, record.IntakeInput{
		SourceType:        src,
		Content:           input.Content,
		AdditionalContext: input.AdditionalContext,
		OfficerID:         input.OfficerID,
	})
	if err != nil {
		msg, kind := failureOf(err)
		return nil, StartIntakeOutput{SessionID: id, Status: statusFailed, Error: msg, ErrorKind: kind}, nil
	}
	return nil, StartIntakeOutput{
		SessionID: id,
		Status:    string(state.StatusAwaitingReview),
		FactSheet: sheet,
	}, nil
}

// Verify records the officer's verification of the fact sheet.
func (s *PipelineService) Verify(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input VerifyInput,
) (*mcp.CallToolResult, VerifyOutput, error) {
	if err := required("session_id", input.SessionID); err != nil {
		return nil, VerifyOutput{}, err
	}
	if err := required("officer_id", input.OfficerID); err != nil {
		return nil, VerifyOutput{}, err
	}
	sheet, err := s.orch.Verify(ctx, input.SessionID, input.OfficerID, input.Corrections)
	if err != nil {
		msg, kind := failureOf(err)
		return nil, VerifyOutput{SessionID: input.SessionID, Status: statusFailed, Error: msg, ErrorKind: kind}, nil
	}
	return nil, VerifyOutput{SessionID: input.SessionID, Status: statusCompleted, FactSheet: sheet}, nil
}

// stageOutput converts a stage result. A successful stage that still needs
// review is reported as awaiting_review.
func (s *PipelineService) stageOutput(ctx context.Context, id, name string, res stage.Result) StageOutput {
	out := StageOutput{
		SessionID:     id,
		Stage:         name,
		Model:         res.Model,
		Attempts:      res.Attempts,
		DurationMS:    res.Duration.Milliseconds(),
		LowConfidence: res.LowConfidence,
		Skipped:       res.Skipped,
	}
	if !res.Success {
		out.Status = statusFailed
		if res.Err != nil {
			out.Error, out.ErrorKind = failureOf(res.Err)
		}
		return out
	}
	out.Status = statusCompleted
	out.Output = res.Output
	if stg, ok := state.ParseStage(name); ok {
		if st, err := s.orch.GetState(ctx, id); err == nil {
			out.Status = string(st.Status(stg))
		}
	}
	return out
}

// RunStage runs one stage of a session.
func (s *PipelineService) RunStage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunStageInput,
) (*mcp.CallToolResult, StageOutput, error) {
	if err := required("session_id", input.SessionID); err != nil {
		return nil, StageOutput{}, err
	}
	if _, ok := state.ParseStage(input.Stage); !ok {
		return nil, StageOutput{}, fmt.Errorf("unknown stage %q", input.Stage)
	}
	res := s.orch.RunStage(ctx, input.SessionID, input.Stage, orchestrator.StageInput{
		Creator:   input.Creator,
		Platform:  input.Platform,
		StopAfter: input.StopAfter,
	})
	s.log.Debug("mcptools: run_stage", zap.String("session", input.SessionID), zap.String("stage", input.Stage), zap.Bool("success", res.Success))
	return nil, s.stageOutput(ctx, input.SessionID, input.Stage, res), nil
}

// GetState returns the stage table and the full session state.
func (s *PipelineService) GetState(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetStateInput,
) (*mcp.CallToolResult, GetStateOutput, error) {
	if err := required("session_id", input.SessionID); err != nil {
		return nil, GetStateOutput{}, err
	}
	st, err := s.orch.GetState(ctx, input.SessionID)
	if err != nil {
		return nil, GetStateOutput{}, fmt.Errorf("get state: %s", failure.UserMessage(err))
	}
	out := GetStateOutput{SessionID: st.SessionID, State: st}
	for _, name := range state.StageNames() {
		sl := st.Slot(name)
		row := StageSummary{Stage: string(name), Status: string(sl.Status), Revision: sl.Revision, Error: sl.Error}
		if !sl.UpdatedAt.IsZero() {
			row.UpdatedAt = sl.UpdatedAt.UTC().Format(time.RFC3339)
		}
		out.Stages = append(out.Stages, row)
	}
	return nil, out, nil
}

// ResumeFrom reruns the pipeline from a stage or visual checkpoint.
func (s *PipelineService) ResumeFrom(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ResumeFromInput,
) (*mcp.CallToolResult, StageOutput, error) {
	if err := required("session_id", input.SessionID); err != nil {
		return nil, StageOutput{}, err
	}
	if err := required("checkpoint", input.Checkpoint); err != nil {
		return nil, StageOutput{}, err
	}
	res := s.orch.ResumeFrom(ctx, input.SessionID, input.Checkpoint, orchestrator.StageInput{
		Creator:   input.Creator,
		StopAfter: input.StopAfter,
	})
	name := input.Checkpoint
	if _, ok := state.ParseStage(name); !ok {
		name = string(state.StageVisual)
	}
	return nil, s.stageOutput(ctx, input.SessionID, name, res), nil
}

// CreateScamReport builds the scam report for a verified session.
func (s *PipelineService) CreateScamReport(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CreateScamReportInput,
) (*mcp.CallToolResult, CreateScamReportOutput, error) {
	if err := required("session_id", input.SessionID); err != nil {
		return nil, CreateScamReportOutput{}, err
	}
	report, err := s.orch.CreateScamReport(ctx, input.SessionID, input.Severity)
	if err != nil {
		msg, kind := failureOf(err)
		return nil, CreateScamReportOutput{SessionID: input.SessionID, Status: statusFailed, Error: msg, ErrorKind: kind}, nil
	}
	return nil, CreateScamReportOutput{SessionID: input.SessionID, Status: statusCompleted, Report: report}, nil
}

// ChatRefine discusses the unverified fact sheet with the officer.
func (s *PipelineService) ChatRefine(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ChatRefineInput,
) (*mcp.CallToolResult, ChatRefineOutput, error) {
	if err := required("session_id", input.SessionID); err != nil {
		return nil, ChatRefineOutput{}, err
	}
	if err := required("message", input.Message); err != nil {
		return nil, ChatRefineOutput{}, err
	}
	reply, err := s.orch.ChatRefine(ctx, input.SessionID, input.Message)
	if err != nil {
		msg, kind := failureOf(err)
		return nil, ChatRefineOutput{SessionID: input.SessionID, Status: statusFailed, Error: msg, ErrorKind: kind}, nil
	}
	return nil, ChatRefineOutput{
		SessionID: input.SessionID,
		Status:    statusCompleted,
		Reply:     reply.Reply,
		Language:  reply.Language,
		Updated:   reply.Updated,
		FactSheet: reply.FactSheet,
		History:   reply.History,
	}, nil
}

// Refine revises the committed script or social strategy from feedback.
func (s *PipelineService) Refine(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RefineInput,
) (*mcp.CallToolResult, StageOutput, error) {
	if err := required("session_id", input.SessionID); err != nil {
		return nil, StageOutput{}, err
	}
	if err := required("feedback", input.Feedback); err != nil {
		return nil, StageOutput{}, err
	}

	var (
		out any
		err error
	)
	switch state.StageName(input.Target) {
	case state.StageScript:
		out, err = s.orch.RefineScript(ctx, input.SessionID, input.Feedback)
	case state.StageSocial:
		out, err = s.orch.RefineSocial(ctx, input.SessionID, input.Feedback, input.Section)
	default:
		return nil, StageOutput{}, fmt.Errorf("target must be script or social_strategy, got %q", input.Target)
	}
	if err != nil {
		msg, kind := failureOf(err)
		return nil, StageOutput{SessionID: input.SessionID, Stage: input.Target, Status: statusFailed, Error: msg, ErrorKind: kind}, nil
	}
	return nil, StageOutput{SessionID: input.SessionID, Stage: input.Target, Status: statusCompleted, Output: out}, nil
}

// RunFull runs every stage after verification and returns the package.
func (s *PipelineService) RunFull(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunFullInput,
) (*mcp.CallToolResult, RunFullOutput, error) {
	if err := required("session_id", input.SessionID); err != nil {
		return nil, RunFullOutput{}, err
	}
	c := record.DefaultCreatorConfig()
	if input.Creator != nil {
		c = *input.Creator
	}
	pkg, err := s.orch.RunFull(ctx, input.SessionID, c)
	out := RunFullOutput{SessionID: input.SessionID, Status: statusCompleted}
	if len(pkg.VideoInputs) > 0 {
		out.Package = pkg
	}
	if err != nil {
		out.Status = statusFailed
		out.Error, out.ErrorKind = failureOf(err)
	}
	return nil, out, nil
}
