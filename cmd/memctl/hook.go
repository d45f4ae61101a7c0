package main

import (
	"encoding/json"
	"fmt"

	"github.com/agentkits/memory/internal/capture"
	"github.com/spf13/cobra"
)

// hookEvent is the normalized payload an editor/assistant integration sends
// on stdin for one lifecycle event, modeled on Claude Code's own hook
// event names (session_start, user_prompt_submit, post_tool_use, stop).
// Nothing in spec.md enumerates hook event names explicitly; this is the
// integration surface a capture service needs regardless, so the names
// follow the host ecosystem it is built to sit inside.
type hookEvent struct {
	SessionID    string         `json:"session_id"`
	Project      string         `json:"project"`
	CWD          string         `json:"cwd"`
	Prompt       string         `json:"prompt,omitempty"`
	ToolName     string         `json:"tool_name,omitempty"`
	ToolInput    map[string]any `json:"tool_input,omitempty"`
	ToolResponse any            `json:"tool_response,omitempty"`
}

// hookCmd dispatches one normalized hook event into the capture service,
// reading its JSON payload from stdin. Grounded on the teacher's own
// "hook <hook-name> [args...]" dispatch shape (cmd/bd/hook.go), adapted
// from git-hook names to capture-service event names.
var hookCmd = &cobra.Command{
	Use:    "hook <event>",
	Short:  "deliver one session/prompt/tool-call event to the capture service",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		event := args[0]

		var in hookEvent
		dec := json.NewDecoder(cmd.InOrStdin())
		if err := dec.Decode(&in); err != nil {
			return fmt.Errorf("decoding hook payload: %w", err)
		}

		switch event {
		case "session_start":
			if _, err := eng.capture.InitSession(rootCtx, in.SessionID, in.Project, in.Prompt); err != nil {
				return err
			}
			if pending, err := anyTasksPending(); err == nil && pending {
				go func() { _ = spawnWorkers(rootCtx, eng.settings.MemoryDir) }()
			}
		case "user_prompt_submit":
			if _, err := eng.capture.SaveUserPrompt(rootCtx, in.SessionID, in.Project, in.Prompt); err != nil {
				return err
			}
		case "post_tool_use":
			if _, err := eng.capture.StoreObservation(rootCtx, capture.ObservationInput{
				SessionID:    in.SessionID,
				Project:      in.Project,
				ToolName:     in.ToolName,
				ToolInput:    in.ToolInput,
				ToolResponse: in.ToolResponse,
				CWD:          in.CWD,
			}); err != nil {
				return err
			}
		case "stop":
			// Session end: this is when queued embed/enrich/compress work
			// actually gets drained, since nothing else in the CLI surface
			// runs long enough to host a worker loop.
			if err := spawnWorkers(rootCtx, eng.settings.MemoryDir); err != nil {
				log.Warn("worker supervision at session stop", "error", err.Error())
			}
		default:
			return fmt.Errorf("unknown hook event %q", event)
		}

		return nil
	},
}

func anyTasksPending() (bool, error) {
	for _, kind := range taskKinds {
		n, err := eng.store.PendingCount(rootCtx, kind)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}
