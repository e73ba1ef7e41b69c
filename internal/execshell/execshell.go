// Package execshell is the process executor: it runs a parsed shell
// command as a child process under a working-directory allow-list,
// timeout and output-size ceiling, and reports a structured result
// instead of ever panicking or leaking a goroutine. Simple commands
// are spawned directly by name and argument vector; approved compound
// commands go through "sh -c" so their operators take effect.
package execshell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/corestack/agentcore/internal/obslog"
	"github.com/corestack/agentcore/internal/shell"
)

const (
	DefaultTimeout   = 120 * time.Second
	DefaultMaxOutput = 10 * 1024 * 1024
	MinMaxOutput     = 1024
	killGracePeriod  = 5 * time.Second
	longTimeoutWarn  = 10 * time.Minute
)

// Options configures a single Execute call.
type Options struct {
	WorkingDir    string
	Timeout       time.Duration
	Environment   map[string]string
	MaxOutputByte int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxOutputByte <= 0 {
		o.MaxOutputByte = DefaultMaxOutput
	} else if o.MaxOutputByte < MinMaxOutput {
		o.MaxOutputByte = MinMaxOutput
	}
	return o
}

// Result is the structured outcome of running a command. It is always
// returned, never an error wrapping a process failure: a non-zero
// exit code is reported, not raised.
type Result struct {
	Success      bool
	Stdout       string
	Stderr       string
	ExitCode     int
	Signal       string
	Command      string
	Duration     time.Duration
	Killed       bool
	ErrorMessage string
}

// Metrics holds the executor's ambient counters: commands by outcome,
// run duration, and kills by reason. Export is outside this module's
// scope; the collectors register against reg only when one is given.
type Metrics struct {
	Commands *prometheus.CounterVec
	Duration prometheus.Histogram
	Kills    *prometheus.CounterVec
}

// NewMetrics builds a Metrics set. A nil reg leaves the collectors
// usable but unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "execshell",
			Name:      "commands_total",
			Help:      "Commands executed, by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Subsystem: "execshell",
			Name:      "command_duration_seconds",
			Help:      "Wall-clock duration of executed commands.",
			Buckets:   prometheus.DefBuckets,
		}),
		Kills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "execshell",
			Name:      "kills_total",
			Help:      "Forced command terminations, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.Duration, m.Kills)
	}
	return m
}

// Executor runs commands under a working-directory allow-list.
type Executor struct {
	AllowedRoots []string // absolute paths; empty means no restriction

	metrics *Metrics
	log     hclog.Logger
}

// New builds an Executor restricted to the given allowed roots, logging
// through a named "execshell" logger. Its collectors stay unregistered;
// use NewWithMetrics to share a registered set.
func New(allowedRoots ...string) *Executor {
	return NewWithMetrics(nil, allowedRoots...)
}

// NewWithMetrics is New with a caller-supplied Metrics set, for
// processes that scrape a shared Prometheus registry.
func NewWithMetrics(metrics *Metrics, allowedRoots ...string) *Executor {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Executor{AllowedRoots: allowedRoots, metrics: metrics, log: obslog.New("execshell")}
}

// Execute runs a parsed command. Commands with no compound structure
// are spawned directly (no shell); commands the caller has already
// confirmed are an approved compound form are run through "sh -c" so
// pipes/redirection/substitution behave as the user expects.
func (e *Executor) Execute(ctx context.Context, pc *shell.ParsedCommand, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.Timeout > longTimeoutWarn {
		e.log.Warn("command timeout is unusually long", "timeout", opts.Timeout)
	}

	if opts.WorkingDir != "" {
		if err := e.checkWorkingDir(opts.WorkingDir); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var cmd *exec.Cmd
	if pc.IsComplex() {
		cmd = exec.CommandContext(ctx, "sh", "-c", pc.OriginalText)
	} else {
		comp := pc.Components[0]
		cmd = exec.CommandContext(ctx, comp.Head, comp.Args...)
	}

	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	if len(opts.Environment) > 0 {
		cmd.Env = append(os.Environ(), envSlice(opts.Environment)...)
	}

	return e.run(ctx, cmd, pc.OriginalText, opts)
}

// checkWorkingDir rejects any directory that is not exactly an allowed
// root or a true descendant of one, preventing a substring bypass like
// "/tmp-attack" satisfying an allow-list entry of "/tmp".
func (e *Executor) checkWorkingDir(dir string) error {
	if len(e.AllowedRoots) == 0 {
		return nil
	}
	clean := filepath.Clean(dir)
	for _, root := range e.AllowedRoots {
		root = filepath.Clean(root)
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("execshell: working directory %q is outside the allowed roots", dir)
}

type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() >= b.limit {
		b.truncated = true
		return len(p), nil
	}
	remaining := b.limit - b.buf.Len()
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *boundedBuffer) isTruncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

func (e *Executor) run(ctx context.Context, cmd *exec.Cmd, commandText string, opts Options) (*Result, error) {
	stdout := &boundedBuffer{limit: opts.MaxOutputByte}
	stderr := &boundedBuffer{limit: opts.MaxOutputByte}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	e.log.Debug("command start", "command", commandText, "dir", cmd.Dir, "timeout", opts.Timeout)
	if err := cmd.Start(); err != nil {
		e.metrics.Commands.WithLabelValues("spawn_error").Inc()
		e.log.Error("command failed to start", "command", commandText, "err", err)
		return &Result{
			Success:      false,
			Command:      commandText,
			ErrorMessage: err.Error(),
			Duration:     time.Since(start),
		}, nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var killed bool
	var signal string
	var overflowed bool

	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

waitLoop:
	for {
		select {
		case <-done:
			break waitLoop
		case <-ctx.Done():
			killed = true
			e.log.Warn("command timed out", "command", commandText, "timeout", opts.Timeout)
			signal = e.terminate(cmd, done)
			break waitLoop
		case <-poll.C:
			if stdout.isTruncated() || stderr.isTruncated() {
				overflowed = true
				killed = true
				e.log.Warn("command output overflow, killing", "command", commandText, "limit", opts.MaxOutputByte)
				signal = e.terminate(cmd, done)
				break waitLoop
			}
		}
	}

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Command:  commandText,
		Duration: time.Since(start),
		Killed:   killed,
		Signal:   signal,
	}

	e.metrics.Duration.Observe(result.Duration.Seconds())

	if killed {
		result.Success = false
		switch {
		case overflowed:
			result.ErrorMessage = fmt.Sprintf("Command output exceeded %dbytes", opts.MaxOutputByte)
			e.metrics.Kills.WithLabelValues("output_overflow").Inc()
		default:
			result.ErrorMessage = fmt.Sprintf("Command timed out after %dms", opts.Timeout.Milliseconds())
			e.metrics.Kills.WithLabelValues("timeout").Inc()
		}
		result.ExitCode = -1
		e.metrics.Commands.WithLabelValues("killed").Inc()
		return result, nil
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	result.Success = result.ExitCode == 0
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	e.metrics.Commands.WithLabelValues(outcome).Inc()
	e.log.Debug("command finished", "command", commandText, "exit_code", result.ExitCode, "duration", result.Duration)
	return result, nil
}

// terminate sends a graceful signal and escalates to Kill if the
// process is still alive after killGracePeriod. done is the process's
// single Wait() result channel; terminate is always the sole consumer
// of it from this point on.
func (e *Executor) terminate(cmd *exec.Cmd, done <-chan error) string {
	if cmd.Process == nil {
		return ""
	}
	_ = cmd.Process.Signal(timeoutSignal())
	timer := time.NewTimer(killGracePeriod)
	defer timer.Stop()

	select {
	case <-done:
		return "TERM"
	case <-timer.C:
		e.log.Warn("process did not exit after SIGTERM, escalating to SIGKILL", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
		return "KILL"
	}
}

// Format renders the result as the conventional human-readable string:
// stdout, then a "--- STDERR ---" section when stderr is non-empty,
// then (when withMetadata is set) an exit/duration/kill footer.
func (r *Result) Format(withMetadata bool) string {
	var sb strings.Builder
	sb.WriteString(r.Stdout)
	if r.Stderr != "" {
		if sb.Len() > 0 && !strings.HasSuffix(r.Stdout, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("--- STDERR ---\n")
		sb.WriteString(r.Stderr)
	}
	if withMetadata {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "--- exit %d in %s", r.ExitCode, r.Duration.Round(time.Millisecond))
		if r.Killed {
			sb.WriteString(", killed")
			if r.Signal != "" {
				sb.WriteString(" (SIG" + r.Signal + ")")
			}
		}
		if r.ErrorMessage != "" {
			sb.WriteString(": " + r.ErrorMessage)
		}
		sb.WriteString(" ---")
	}
	return sb.String()
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
