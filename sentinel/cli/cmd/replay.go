package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/cli/pkg/output"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/alerts"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/config"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/engine"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/patterns"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/responder"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/source"
)

var (
	replayPatterns string
	replayLimit    int
)

var replayCmd = &cobra.Command{
	Use:   "replay <file|->",
	Short: "Run a JSON lines event file through an in-process engine",
	Long: `Replay security events through the correlation engine and report the
indicators, incidents, alerts and blocks it produced.

The engine clock follows event timestamps, so recorded traffic correlates
the same way it would have live.

Examples:
  sentinelctl replay events.jsonl
  sentinelctl simulate brute-force | sentinelctl replay - -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var src *source.JSONLSource
		if args[0] == "-" {
			src = source.NewReaderSource(cmd.InOrStdin(), cliLogger(cmd))
		} else {
			src = source.NewFileSource(args[0], cliLogger(cmd))
		}
		report, err := replay(cmd.Context(), cmd, src)
		if err != nil {
			return err
		}
		if skipped := src.Skipped(); skipped > 0 {
			printerFor(cmd).Warn("skipped %d malformed lines", skipped)
		}
		return renderReport(printerFor(cmd), report)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayPatterns, "patterns", "", "pattern file (default: config or built-in catalogue)")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 50, "maximum indicators to report (0 for all)")
	rootCmd.AddCommand(replayCmd)
}

// Report is the outcome of a replay.
type Report struct {
	Stats      models.EngineStatistics   `json:"stats"`
	Indicators []models.ThreatIndicator  `json:"indicators"`
	Incidents  []models.SecurityIncident `json:"incidents"`
	Alerts     []alerts.Alert            `json:"alerts"`
	Actions    []responder.ActionRequest `json:"actions"`
}

// eventClock reports the newest event timestamp seen, or wall time before
// the first event.
type eventClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *eventClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		return time.Now().UTC()
	}
	return c.now
}

func (c *eventClock) advance(t time.Time) {
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
}

// clockedSource advances the clock as each event is handed to the engine.
type clockedSource struct {
	src   engine.EventSource
	clock *eventClock
}

func (s clockedSource) Events(ctx context.Context) (<-chan models.SecurityEvent, error) {
	in, err := s.src.Events(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan models.SecurityEvent)
	go func() {
		defer close(out)
		for ev := range in {
			s.clock.advance(ev.Timestamp)
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func cliLogger(cmd *cobra.Command) *logging.Logger {
	if !verbose {
		return logging.Discard()
	}
	return logging.NewWithWriter(cmd.ErrOrStderr(), slog.LevelDebug, "text")
}

func replay(ctx context.Context, cmd *cobra.Command, src engine.EventSource) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	patternFile := replayPatterns
	if patternFile == "" {
		patternFile = cfg.Patterns.File
	}
	pats, err := patterns.Load(patternFile)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var mu sync.Mutex
	sink := alerts.SinkFunc(func(_ context.Context, a alerts.Alert) error {
		mu.Lock()
		report.Alerts = append(report.Alerts, a)
		mu.Unlock()
		return nil
	})
	exec := responder.ExecutorFunc(func(_ context.Context, req responder.ActionRequest) error {
		mu.Lock()
		report.Actions = append(report.Actions, req)
		mu.Unlock()
		return nil
	})

	clock := &eventClock{}
	engCfg := cfg.EngineConfig()
	engCfg.ConsumeWorkers = 1

	eng, err := engine.New(engCfg, engine.Dependencies{
		Patterns: pats,
		Sink:     sink,
		Executor: exec,
		Logger:   cliLogger(cmd),
		Clock:    clock.Now,
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eng.Start(runCtx)

	consumeErr := eng.Consume(runCtx, clockedSource{src: src, clock: clock})

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	flushErr := eng.Flush(stopCtx)

	report.Stats = eng.Stats()
	report.Indicators = eng.ListThreatIndicators(replayLimit)
	report.Incidents = eng.ListActiveIncidents()

	if err := eng.Stop(stopCtx); err != nil && flushErr == nil {
		flushErr = err
	}
	if consumeErr != nil {
		return nil, fmt.Errorf("replay failed: %w", consumeErr)
	}
	if flushErr != nil {
		return nil, fmt.Errorf("failed to deliver alerts: %w", flushErr)
	}
	if r, ok := src.(interface{ Err() error }); ok && r.Err() != nil {
		return nil, r.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	out := *report
	return &out, nil
}

func renderReport(p *output.Printer, r *Report) error {
	if outputFormat != output.FormatTable {
		return p.Structured(outputFormat, r)
	}

	p.Info("Processed %d events (%d rejected), %d threats, %d incidents, %d alerts (%d suppressed), %d blocks",
		r.Stats.EventsProcessed, r.Stats.EventsRejected, r.Stats.ThreatsDetected,
		r.Stats.IncidentsCreated, r.Stats.AlertsSent, r.Stats.AlertsSuppressed, len(r.Actions))

	if len(r.Indicators) > 0 {
		fmt.Fprintln(p.Out)
		tbl := output.NewTable([]string{"SOURCE", "CATEGORY", "LEVEL", "CONF", "COUNT", "ENTITIES", "LAST SEEN"})
		for _, ind := range r.Indicators {
			tbl.AddRow([]string{
				ind.Source,
				string(ind.Category),
				string(ind.Level),
				strconv.FormatFloat(ind.Confidence, 'f', 2, 64),
				strconv.Itoa(ind.Count),
				strings.Join(ind.AffectedEntities, ","),
				ind.LastSeen.Format(time.RFC3339),
			})
		}
		tbl.Render(p)
	}

	if len(r.Incidents) > 0 {
		fmt.Fprintln(p.Out)
		tbl := output.NewTable([]string{"INCIDENT", "TITLE", "STATUS", "RISK", "INDICATORS", "ACTIONS"})
		for _, inc := range r.Incidents {
			tbl.AddRow([]string{
				inc.ID,
				inc.Title,
				string(inc.Status),
				strconv.Itoa(inc.RiskScore),
				strconv.Itoa(len(inc.Indicators)),
				strconv.Itoa(len(inc.Actions)),
			})
		}
		tbl.Render(p)
	}

	if len(r.Indicators) == 0 {
		p.Success("no threats detected")
	}
	return nil
}
