// Package agent implements the subprocess-driven CLI coding agent (the
// IAgentProvider backend) and a lightweight LLM-only planner, which is not
// an IAgentProvider and satisfies the Scrum-Master's Planner interface.
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperionlabs/mergebot/internal/apperr"
	"github.com/hyperionlabs/mergebot/internal/ports"
)

// SubprocessConfig configures how the coding CLI is invoked.
type SubprocessConfig struct {
	Binary string // e.g. "claude"
	ExtraArgs []string
	DefaultModel string
	WorkingDirectory string
}

// Subprocess is an IAgentProvider that shells out to a coding CLI, reads
// its stdout line by line as newline-delimited JSON, and reports the
// terminal result.
type Subprocess struct {
	cfg SubprocessConfig
	log *zap.Logger

	mu sync.Mutex
	available bool
}

func NewSubprocess(cfg SubprocessConfig, log *zap.Logger) *Subprocess {
	if log == nil {
		log = zap.NewNop()
	}
	return &Subprocess{cfg: cfg, log: log, available: true}
}

// lineEvent mirrors the subset of the CLI's streamed JSON shapes this
// provider understands: assistant text deltas, tool-use notices, and a
// terminal "result" record.
type lineEvent struct {
	Type string `json:"type"`
	Subtype string `json:"subtype"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Name string `json:"name"`
		} `json:"content"`
	} `json:"message"`
	Result string `json:"result"`
	IsError bool `json:"is_error"`
	TotalCost float64 `json:"total_cost_usd"`
	DurationMs int64 `json:"duration_ms"`
	SessionID string `json:"session_id"`
}

func (s *Subprocess) IsAvailable(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

func (s *Subprocess) Dispose(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = false
	return nil
}

// ExecuteTask spawns the CLI with the flags implied by cfg, streams
// progress events to the caller as they arrive, and returns after stdout
// reaches EOF and the process has exited; the last "result" line seen
// supplies the outcome.
func (s *Subprocess) ExecuteTask(ctx context.Context, cfg ports.AgentTaskConfig, progress func(ports.AgentProgressEvent)) (ports.AgentResult, error) {
	args := s.buildArgs(cfg)

	cmd := exec.CommandContext(ctx, s.cfg.Binary, args...)
	if dir := firstNonEmpty(cfg.WorkingDirectory, s.cfg.WorkingDirectory); dir != "" {
		cmd.Dir = dir
	}
	cmd.Stdin = strings.NewReader(cfg.Prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ports.AgentResult{}, apperr.New(apperr.TransientTransport, "agent_stdout_pipe", "open stdout pipe", err)
	}
	stderrBuf := &strings.Builder{}
	cmd.Stderr = lineWriter{builder: stderrBuf}

	if err := cmd.Start(); err != nil {
		return ports.AgentResult{}, apperr.New(apperr.TransientTransport, "agent_start_failed", "start agent process", err)
	}

	start := time.Now()
	result, parseErr := s.readStream(stdout, progress)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ports.AgentResult{}, apperr.New(apperr.Cancelled, "agent_cancelled", "agent process cancelled", ctx.Err())
	}

	if !result.seen {
		errMsg := stderrBuf.String()
		if parseErr != nil {
			errMsg = parseErr.Error() + ": " + errMsg
		}
		if waitErr != nil {
			errMsg = waitErr.Error() + ": " + errMsg
		}
		return ports.AgentResult{
			Success: false,
			Error: strings.TrimSpace(errMsg),
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	return ports.AgentResult{
		Success: !result.isError,
		Output: result.output,
		CostUsd: result.costUsd,
		DurationMs: result.durationMs,
		Error: result.errMsg,
		SessionID: result.sessionID,
	}, nil
}

func (s *Subprocess) buildArgs(cfg ports.AgentTaskConfig) []string {
	args := append([]string{}, s.cfg.ExtraArgs...)
	args = append(args, "--output-format", "stream-json")

	model := firstNonEmpty(cfg.Model, s.cfg.DefaultModel)
	if model != "" {
		args = append(args, "--model", model)
	}
	if cfg.MaxBudgetUsd > 0 {
		args = append(args, "--max-budget-usd", fmt.Sprintf("%.2f", cfg.MaxBudgetUsd))
	}
	if len(cfg.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(cfg.AllowedTools, ","))
	}
	if cfg.BypassPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if cfg.ResumeSessionID != "" {
		args = append(args, "--resume", cfg.ResumeSessionID)
	}
	if len(cfg.JSONSchema) > 0 {
		args = append(args, "--json-schema", string(cfg.JSONSchema))
	}
	return args
}

type terminalResult struct {
	seen bool
	isError bool
	output string
	errMsg string
	costUsd float64
	durationMs int64
	sessionID string
}

// readStream parses stdout line by line; unparseable lines and
// unrecognised event types are passed through as plain text progress
// rather than treated as a fatal error, since the CLI's stream includes
// log-like lines that aren't part of the JSON protocol.
func (s *Subprocess) readStream(r interface{ Read([]byte) (int, error) }, progress func(ports.AgentProgressEvent)) (terminalResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out terminalResult
	var lastErr error

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var ev lineEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			if progress != nil {
				progress(ports.AgentProgressEvent{Type: "text", Text: line})
			}
			continue
		}

		switch ev.Type {
		case "assistant":
			for _, block := range ev.Message.Content {
				switch block.Type {
				case "text":
					if progress != nil {
						progress(ports.AgentProgressEvent{Type: "text", Text: block.Text})
					}
				case "tool_use":
					if progress != nil {
						progress(ports.AgentProgressEvent{Type: "tool_use", ToolName: block.Name})
					}
				}
			}
		case "result":
			out = terminalResult{
				seen: true,
				isError: ev.IsError,
				output: ev.Result,
				errMsg: errOrEmpty(ev.IsError, ev.Result),
				costUsd: ev.TotalCost,
				durationMs: ev.DurationMs,
				sessionID: ev.SessionID,
			}
		}
	}
	if err := scanner.Err(); err != nil {
		lastErr = err
	}
	return out, lastErr
}

func errOrEmpty(isError bool, result string) string {
	if isError {
		return result
	}
	return ""
}

func firstNonEmpty(vals...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// lineWriter adapts a strings.Builder to io.Writer for capturing stderr.
type lineWriter struct{ builder *strings.Builder }

func (w lineWriter) Write(p []byte) (int, error) { return w.builder.Write(p) }
