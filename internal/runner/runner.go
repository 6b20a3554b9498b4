package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"kiln/internal/logging"
	"kiln/internal/services"
)

// LineFunc receives each output line from the supervised process.
type LineFunc func(line string)

// Request describes one supervised engine invocation.
type Request struct {
	Binary  string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	// OnLine is invoked at most once per second with the latest output
	// line. Nil disables progress forwarding.
	OnLine LineFunc
	// RegisterKill receives a handle that terminates the process early.
	// Nil skips registration.
	RegisterKill func(kill func())
}

// Result captures the outcome of a completed invocation.
type Result struct {
	ExitCode int
	Tail     []string
	Duration time.Duration
}

// Summary returns the bounded log tail as one string, suitable for error
// reporting.
func (r Result) Summary() string {
	return summarize(r.Tail)
}

// Executor abstracts process execution for testability.
type Executor interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// Runner supervises batch-mode engine invocations: it launches the process
// with a sanitized environment, tails its output, enforces the timeout, and
// classifies failures into operator-facing messages.
type Runner struct {
	logger *slog.Logger
	exec   Executor
}

// New constructs a Runner.
func New(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		logger: logging.NewComponentLogger(logger, "runner"),
		exec:   processExecutor{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the request and returns the result. Failures are wrapped with
// a classified message so callers can surface them verbatim.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Binary) == "" {
		return Result{}, services.Wrap(services.ErrToolNotConfigured, "build", "run", "engine binary is not configured", nil)
	}
	req.Env = SanitizeEnv(req.Env)

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	r.logger.Info("starting process",
		logging.String("binary", req.Binary),
		logging.String("dir", req.Dir),
		logging.Int("args", len(req.Args)))

	start := time.Now()
	result, err := r.exec.Run(runCtx, req)
	result.Duration = time.Since(start)

	if err != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			msg := fmt.Sprintf("build timed out after %s", req.Timeout)
			return result, services.Wrap(services.ErrProcessFailure, "build", "run", msg, err)
		case errors.Is(ctx.Err(), context.Canceled):
			return result, services.Wrap(services.ErrProcessFailure, "build", "run", "build canceled", ctx.Err())
		}
		msg := Classify(result.Tail)
		return result, services.Wrap(services.ErrProcessFailure, "build", "run", msg, err)
	}

	r.logger.Info("process finished",
		logging.String("binary", req.Binary),
		logging.Duration("elapsed", result.Duration))
	return result, nil
}

const (
	tailMaxLines         = 400
	summaryMaxLen        = 4000
	lineThrottleInterval = time.Second
	scanBufferSize       = 1024 * 1024
)

type processExecutor struct{}

func (processExecutor) Run(ctx context.Context, req Request) (Result, error) {
	cmd := exec.CommandContext(ctx, req.Binary, req.Args...) //nolint:gosec
	cmd.Dir = req.Dir
	cmd.Env = req.Env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start command: %w", err)
	}

	if req.RegisterKill != nil {
		req.RegisterKill(func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		})
	}

	tail := newTailBuffer(tailMaxLines)
	throttle := newLineThrottle(lineThrottleInterval, req.OnLine)

	var wg sync.WaitGroup
	scan := func(reader io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
		for scanner.Scan() {
			line := scanner.Text()
			tail.Append(line)
			throttle.Offer(line)
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	result := Result{Tail: tail.Lines()}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return result, fmt.Errorf("wait command: %w", waitErr)
	}
	return result, nil
}

// tailBuffer keeps the most recent lines in a fixed-size ring.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
	next  int
	full  bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{lines: make([]string, max), max: max}
}

func (b *tailBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % b.max
	if b.next == 0 {
		b.full = true
	}
}

func (b *tailBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]string, b.next)
		copy(out, b.lines[:b.next])
		return out
	}
	out := make([]string, 0, b.max)
	out = append(out, b.lines[b.next:]...)
	out = append(out, b.lines[:b.next]...)
	return out
}

// lineThrottle forwards at most one line per interval. Bursty engine output
// would otherwise hammer the job store with last-line updates.
type lineThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	fn       LineFunc
	last     time.Time
}

func newLineThrottle(interval time.Duration, fn LineFunc) *lineThrottle {
	return &lineThrottle{interval: interval, fn: fn}
}

func (t *lineThrottle) Offer(line string) {
	if t.fn == nil {
		return
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	now := time.Now()
	if now.Sub(t.last) < t.interval {
		t.mu.Unlock()
		return
	}
	t.last = now
	t.mu.Unlock()
	t.fn(line)
}

func summarize(tail []string) string {
	joined := strings.Join(tail, "\n")
	if len(joined) <= summaryMaxLen {
		return joined
	}
	// Keep the end of the log; build failures report last.
	trimmed := joined[len(joined)-summaryMaxLen:]
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return trimmed
}
