// Package capture implements the Capture Service (spec §4.6): the intake
// path for session lifecycle, user prompts, and tool-use observations,
// sitting between the assistant's hook events and the Storage Kernel /
// Task Queue.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/agentkits/memory/internal/contenthash"
	"github.com/agentkits/memory/internal/idgen"
	"github.com/agentkits/memory/internal/storage"
	"github.com/agentkits/memory/internal/types"
)

const (
	resumeWindow           = 5 * time.Minute
	promptDedupWindow      = 5 * time.Minute
	observationDedupWindow = 60 * time.Second

	// maxToolFieldBytes bounds how much of a tool_input/tool_response
	// string is retained; anything past this is truncated with a marker.
	maxToolFieldBytes = 8000
)

// Service is the Capture Service. It owns no state beyond the storage
// handle: every operation is a read-modify-write against the database.
type Service struct {
	store storage.Storage
}

func New(store storage.Storage) *Service {
	return &Service{store: store}
}

// InitSession is idempotent: re-init of an id already on file returns the
// existing row unchanged. A brand new session attaches to a recently
// completed session in the same project, if one ended within the resume
// window, as its parent.
func (s *Service) InitSession(ctx context.Context, sessionID, project, initialPrompt string) (*types.Session, error) {
	existing, err := s.store.GetSession(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	sess := &types.Session{
		ID:        sessionID,
		Project:   project,
		Status:    types.SessionActive,
		Prompt:    initialPrompt,
		StartedAt: time.Now().UTC(),
	}
	if parent, perr := s.store.FindResumableSession(ctx, project, resumeWindow); perr == nil {
		sess.ParentSessionID = parent.ID
	} else if !errors.Is(perr, storage.ErrNotFound) {
		return nil, perr
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SaveUserPrompt dedups by (session_id, content_hash(text)) within the
// prompt dedup window, assigns the next prompt_number, and enqueues an
// embed task for the new row.
func (s *Service) SaveUserPrompt(ctx context.Context, sessionID, project, text string) (*types.UserPrompt, error) {
	hash := contenthash.Hash(sessionID, text)
	if existing, err := s.store.FindPromptByHash(ctx, sessionID, hash, promptDedupWindow); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	number, err := s.store.NextPromptNumber(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	p := &types.UserPrompt{
		ID:           idgen.GenerateHashID("prompt", text, project, sessionID, time.Now(), 6, 0),
		SessionID:    sessionID,
		PromptNumber: number,
		PromptText:   text,
		ContentHash:  hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.StorePrompt(ctx, p); err != nil {
		return nil, err
	}
	if err := s.store.Enqueue(ctx, types.TaskEmbed, "user_prompts", p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// ObservationInput is the normalized hook payload for a single tool call.
type ObservationInput struct {
	SessionID    string
	Project      string
	ToolName     string
	ToolInput    map[string]any
	ToolResponse any
	CWD          string
}

// StoreObservation dedups by (session_id, tool_name, content_hash(...))
// within the observation dedup window, classifies and enriches the
// observation from its tool call, enqueues embed + enrich tasks, and bumps
// the parent session's observation_count exactly once — even on a dedup
// hit, the count is not re-incremented, since the hit means this call was
// already accounted for.
func (s *Service) StoreObservation(ctx context.Context, in ObservationInput) (*types.Observation, error) {
	inputJSON := serializeTruncated(in.ToolInput)
	responseJSON := serializeTruncated(in.ToolResponse)
	hash := contenthash.Hash(in.SessionID, in.ToolName, inputJSON, responseJSON)

	if existing, err := s.store.FindObservationByHash(ctx, in.SessionID, in.ToolName, hash, observationDedupWindow); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	filesRead, filesModified := extractFilePaths(in.ToolName, in.ToolInput)
	narrative, facts := extractEditDiff(in.ToolName, in.ToolInput)

	latest, latestErr := s.store.LatestPrompt(ctx, in.SessionID)
	intent := types.IntentOther
	if latestErr == nil {
		intent = inferIntent(latest.PromptText)
	} else if !errors.Is(latestErr, storage.ErrNotFound) {
		return nil, latestErr
	}
	concepts := []string{"intent:" + string(intent)}

	obs := &types.Observation{
		ID:            idgen.GenerateHashID("obs", in.ToolName, inputJSON, in.SessionID, time.Now(), 6, 0),
		SessionID:     in.SessionID,
		Project:       in.Project,
		ToolName:      in.ToolName,
		ToolInput:     inputJSON,
		ToolResponse:  responseJSON,
		Type:          classifyToolType(in.ToolName),
		Title:         observationTitle(in.ToolName, in.ToolInput),
		FilesRead:     filesRead,
		FilesModified: filesModified,
		Narrative:     narrative,
		Facts:         facts,
		Concepts:      concepts,
		ContentHash:   hash,
		Timestamp:     time.Now().UTC(),
	}
	if latestErr == nil {
		obs.PromptNumber = latest.PromptNumber
	}

	if err := s.store.StoreObservation(ctx, obs); err != nil {
		return nil, err
	}
	if err := s.store.Enqueue(ctx, types.TaskEmbed, "observations", obs.ID); err != nil {
		return nil, err
	}
	if err := s.store.Enqueue(ctx, types.TaskEnrich, "observations", obs.ID); err != nil {
		return nil, err
	}
	if err := s.store.IncrementObservationCount(ctx, in.SessionID); err != nil {
		return nil, err
	}
	return obs, nil
}

func serializeTruncated(v any) string {
	data := marshalCompact(v)
	if len(data) > maxToolFieldBytes {
		return data[:maxToolFieldBytes] + "...(truncated)"
	}
	return data
}
