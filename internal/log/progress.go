package log

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// spinnerFrames is the single animation used for the startup pipeline
// indicator. Other spinner styles the teacher carried (dots, line, clock,
// bounce) had no caller in this repo and were dropped rather than kept
// dormant.
var spinnerFrames = []string{"⚡", "🔄", "⚙️", "🔧", "⚡"}

const spinnerInterval = 200 * time.Millisecond

// spinner animates spinnerFrames on its own goroutine until stopped.
type spinner struct {
	mu      sync.Mutex
	frame   int
	running bool
	stop    chan struct{}
}

func newSpinner() *spinner {
	return &spinner{stop: make(chan struct{}, 1)}
}

func (s *spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.run()
}

func (s *spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.stop <- struct{}{}
}

func (s *spinner) run() {
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.mu.Unlock()
		}
	}
}

func (s *spinner) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return spinnerFrames[s.frame]
}

// pipelineProgress renders one named multi-step pipeline's progress to
// stdout: a spinner, a bar, and (once under way) an ETA.
type pipelineProgress struct {
	mu        sync.Mutex
	name      string
	total     int
	current   int
	startTime time.Time
	spin      *spinner
}

func newPipelineProgress(name string, total int) *pipelineProgress {
	p := &pipelineProgress{
		name:      name,
		total:     total,
		startTime: time.Now(),
		spin:      newSpinner(),
	}
	p.spin.Start()
	return p
}

func (p *pipelineProgress) update(current int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	p.render(message)
}

func (p *pipelineProgress) render(message string) {
	var out strings.Builder
	out.WriteString("\r\033[K")
	out.WriteString(p.spin.Current())
	out.WriteByte(' ')
	out.WriteString(p.name)

	if p.total > 0 {
		const barWidth = 20
		filled := int(float64(barWidth) * float64(p.current) / float64(p.total))
		out.WriteString(" [")
		for i := 0; i < barWidth; i++ {
			if i < filled {
				out.WriteString("█")
			} else {
				out.WriteString("░")
			}
		}
		pct := float64(p.current) / float64(p.total) * 100
		fmt.Fprintf(&out, "] %d/%d (%.1f%%)", p.current, p.total, pct)
	}

	if p.total > 0 && p.current > 0 {
		elapsed := time.Since(p.startTime)
		rate := float64(p.current) / elapsed.Seconds()
		remaining := p.total - p.current
		eta := time.Duration(float64(remaining)/rate) * time.Second
		if eta > time.Hour {
			fmt.Fprintf(&out, " ETA: %v", eta.Round(time.Minute))
		} else {
			fmt.Fprintf(&out, " ETA: %v", eta.Round(time.Second))
		}
	}

	if message != "" {
		out.WriteString(" - ")
		out.WriteString(message)
	}

	fmt.Print(out.String())
}

func (p *pipelineProgress) finish(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spin.Stop()
	elapsed := time.Since(p.startTime).Round(time.Millisecond)
	fmt.Printf("\r✅ %s: %s (%v)\n", p.name, message, elapsed)
}

func (p *pipelineProgress) fail(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spin.Stop()
	elapsed := time.Since(p.startTime).Round(time.Millisecond)
	fmt.Printf("\r❌ %s failed: %s (%v)\n", p.name, reason, elapsed)
}

// StepLogger narrates a named, ordered startup pipeline: one spinner line
// on stdout plus a structured zerolog line per step transition, the way
// orbrunner's boot sequence (parity spec, guard config, time service,
// adapters, engine, poller, HTTP) reports progress before the server has
// anything to serve requests with yet.
type StepLogger struct {
	steps       []string
	currentStep int
	startTime   time.Time
	stepTimes   []time.Duration
	progress    *pipelineProgress
}

// NewStepLogger creates a step logger for the named ordered steps.
func NewStepLogger(name string, steps []string) *StepLogger {
	return &StepLogger{
		steps:       steps,
		currentStep: -1,
		startTime:   time.Now(),
		stepTimes:   make([]time.Duration, len(steps)),
		progress:    newPipelineProgress(name, len(steps)),
	}
}

// StartStep begins a named step. Unknown step names are logged and
// otherwise ignored rather than panicking, since a caller passing a typo'd
// step name shouldn't bring startup down.
func (sl *StepLogger) StartStep(stepName string) {
	idx := indexOf(sl.steps, stepName)
	if idx == -1 {
		log.Warn().Str("step", stepName).Msg("unknown pipeline step")
		return
	}

	if sl.currentStep >= 0 {
		sl.stepTimes[sl.currentStep] = time.Since(sl.startTime) - sl.elapsedBeforeCurrent()
	}
	sl.currentStep = idx
	sl.progress.update(idx+1, stepName)

	log.Info().
		Str("step", stepName).
		Int("step_number", idx+1).
		Int("total_steps", len(sl.steps)).
		Msg("starting pipeline step")
}

// CompleteStep records the current step's duration.
func (sl *StepLogger) CompleteStep() {
	if sl.currentStep < 0 {
		return
	}
	d := time.Since(sl.startTime) - sl.elapsedBeforeCurrent()
	sl.stepTimes[sl.currentStep] = d
	log.Info().
		Str("step", sl.steps[sl.currentStep]).
		Dur("duration", d).
		Msg("pipeline step completed")
}

// Finish completes the logger and emits a per-step timing summary.
func (sl *StepLogger) Finish() {
	sl.CompleteStep()
	total := time.Since(sl.startTime)
	sl.progress.finish(fmt.Sprintf("all %d steps completed", len(sl.steps)))

	log.Info().Dur("total_duration", total).Msg("pipeline completed, step timing summary:")
	for i, step := range sl.steps {
		if i >= len(sl.stepTimes) {
			continue
		}
		pct := float64(sl.stepTimes[i]) / float64(total) * 100
		log.Info().
			Str("step", step).
			Dur("duration", sl.stepTimes[i]).
			Float64("percentage", pct).
			Msgf("  %d. %s", i+1, step)
	}
}

// Fail marks the pipeline as failed on its current step.
func (sl *StepLogger) Fail(reason string) {
	sl.progress.fail(reason)
	log.Error().
		Str("failed_step", sl.currentStepName()).
		Int("completed_steps", sl.currentStep).
		Int("total_steps", len(sl.steps)).
		Str("reason", reason).
		Msg("pipeline failed")
}

func (sl *StepLogger) currentStepName() string {
	if sl.currentStep >= 0 && sl.currentStep < len(sl.steps) {
		return sl.steps[sl.currentStep]
	}
	return "unknown"
}

func (sl *StepLogger) elapsedBeforeCurrent() time.Duration {
	var total time.Duration
	for i := 0; i < sl.currentStep && i < len(sl.stepTimes); i++ {
		total += sl.stepTimes[i]
	}
	return total
}

func indexOf(steps []string, name string) int {
	for i, s := range steps {
		if s == name {
			return i
		}
	}
	return -1
}
