package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// Config holds runner limits.
type Config struct {
	Timeout          time.Duration
	MaxCallStackSize int
	MaxOutputBytes   int
}

// DefaultConfig returns default runner limits.
func DefaultConfig() Config {
	return Config{
		Timeout:          2 * time.Second,
		MaxCallStackSize: 1024,
		MaxOutputBytes:   64 * 1024,
	}
}

// Result is the outcome of one snippet execution. Snippet failures are
// reported here, never as a Go error.
type Result struct {
	Output   string        `json:"output"`
	Error    bool          `json:"error"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// Runner executes JavaScript snippets, each in a fresh VM whose only host
// binding is console.
type Runner struct {
	cfg Config
}

// New creates a runner. Zero limits fall back to the defaults.
func New(cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxCallStackSize <= 0 {
		cfg.MaxCallStackSize = def.MaxCallStackSize
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	return &Runner{cfg: cfg}
}

// Run executes source and returns the captured console.log output. A thrown
// value, a timeout or cancellation of ctx replaces the output with
// "Error: <message>".
func (r *Runner) Run(ctx context.Context, source string) *Result {
	start := time.Now()

	vm := goja.New()
	vm.SetMaxCallStackSize(r.cfg.MaxCallStackSize)

	out := newCapture(r.cfg.MaxOutputBytes)
	if err := installConsole(vm, out); err != nil {
		return &Result{Output: "Error: " + err.Error(), Error: true, Duration: time.Since(start)}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	stop := context.AfterFunc(runCtx, func() {
		vm.Interrupt(runCtx.Err())
	})
	defer stop()

	_, err := vm.RunString(source)

	res := &Result{Duration: time.Since(start)}
	if err == nil {
		res.Output = out.String()
		return res
	}

	res.Error = true
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			res.Output = fmt.Sprintf("Error: execution timed out after %s", r.cfg.Timeout)
			return res
		}
		res.Output = fmt.Sprintf("Error: %v", interrupted.Value())
		return res
	}

	res.Output = "Error: " + errorMessage(err)
	return res
}

// Grade runs source and compares its output with expected, trimming only
// leading and trailing whitespace on both sides.
func (r *Runner) Grade(ctx context.Context, source, expected string) *Grade {
	return newGrade(r.Run(ctx, source), expected)
}

// errorMessage extracts the message of a thrown value: the message property
// of Error objects, the string form of anything else. Compile errors carry
// the parser message.
func errorMessage(err error) string {
	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		return syntaxErr.Message
	}
	var exc *goja.Exception
	if !errors.As(err, &exc) {
		return err.Error()
	}
	val := exc.Value()
	if val == nil {
		return exc.Error()
	}
	if obj, ok := val.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return val.String()
}
