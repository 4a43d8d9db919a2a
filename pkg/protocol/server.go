// Package protocol implements the line-delimited control channel: one
// command per input line, one JSON event per output line.
package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/screa/vanity-search/internal/logger"
	"github.com/screa/vanity-search/pkg/pattern"
	"github.com/screa/vanity-search/pkg/types"
)

// StopCommand cancels the active job and ends the read loop.
const StopCommand = "stop"

const maxLineLen = 1 << 20

// CommandKind identifies a parsed input line
type CommandKind int

const (
	CmdSearch CommandKind = iota + 1
	CmdStop
)

// Command is a parsed input line
type Command struct {
	Kind   CommandKind
	Prefix string
}

type searchRequest struct {
	Prefix *string `json:"prefix"`
}

// ParseLine decodes one input line. ok is false for lines that should be
// ignored: blank, malformed JSON, or JSON without a prefix.
func ParseLine(line string) (Command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, false
	}
	if line == StopCommand {
		return Command{Kind: CmdStop}, true
	}
	var req searchRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil || req.Prefix == nil {
		return Command{}, false
	}
	return Command{Kind: CmdSearch, Prefix: *req.Prefix}, true
}

// JobRunner runs one search job to completion. *miner.Miner implements it.
type JobRunner interface {
	Run(ctx context.Context, job *types.SearchJob) (*types.Result, error)
}

// Server reads commands and runs one job at a time.
type Server struct {
	in     io.Reader
	runner JobRunner
	rules  []types.Rule
	logger *logger.Logger
}

// NewServer creates a server reading commands from in. rules apply to every
// job for the lifetime of the process.
func NewServer(in io.Reader, runner JobRunner, rules []types.Rule, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{in: in, runner: runner, rules: rules, logger: log}
}

type jobOutcome struct {
	result *types.Result
	err    error
}

// Serve processes input until "stop", end of input or ctx cancellation.
// Search requests that arrive while a job runs are queued and started in
// order once it finishes. At end of input the running and queued jobs are
// still completed. A non-nil error means a job failed fatally.
func (s *Server) Serve(ctx context.Context) error {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	lines := s.readLines(readCtx)

	var pending []string
	for {
		var line string
		if len(pending) > 0 {
			line, pending = pending[0], pending[1:]
		} else {
			select {
			case <-ctx.Done():
				return nil
			case l, ok := <-lines:
				if !ok {
					return nil
				}
				line = l
			}
		}

		cmd, ok := ParseLine(line)
		if !ok {
			s.logger.Debug("ignoring input line", "line", line)
			continue
		}
		if cmd.Kind == CmdStop {
			s.logger.Info("stop requested")
			return nil
		}

		stop, err := s.runJob(ctx, cmd.Prefix, lines, &pending)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// runJob runs one job while watching the input for "stop". It reports
// whether the read loop should end.
func (s *Server) runJob(ctx context.Context, prefix string, lines <-chan string, pending *[]string) (bool, error) {
	if err := pattern.ValidatePrefix(prefix); err != nil {
		s.logger.Warn("prefix can never match", "err", err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	job := types.NewSearchJob(prefix, s.rules)
	done := make(chan jobOutcome, 1)
	go func() {
		res, err := s.runner.Run(jobCtx, job)
		done <- jobOutcome{res, err}
	}()

	for {
		select {
		case out := <-done:
			return false, out.err
		case l, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if strings.TrimSpace(l) == StopCommand {
				s.logger.Info("stop requested", "job", job.ID)
				cancel()
				out := <-done
				return true, out.err
			}
			*pending = append(*pending, l)
		case <-ctx.Done():
			out := <-done
			return true, out.err
		}
	}
}

func (s *Server) readLines(ctx context.Context) <-chan string {
	out := make(chan string, 16)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(s.in)
		sc.Buffer(make([]byte, 0, 4096), maxLineLen)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			s.logger.Warn("input read failed", "err", err)
		}
	}()
	return out
}
