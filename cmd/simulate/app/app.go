package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/sim"
	"github.com/roman-kulish/radiosense/internal/storage"
	"github.com/roman-kulish/radiosense/internal/survey"
)

const (
	maxBatchSize = 100
	sourceName   = "simulation"
)

// Run simulates the fleet, stores the frames the root shipped when a database
// is configured and writes a summary to out.
func Run(ctx context.Context, config *Config, out io.Writer, logger *slog.Logger) error {
	simulator, err := sim.New(config.Simulation, sim.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create simulation: %w", err)
	}

	result, err := simulator.Run(ctx)
	if err != nil {
		return err
	}

	var session *survey.Session
	if config.Storage.Database != "" {
		if session, err = storeResult(ctx, config, result); err != nil {
			return fmt.Errorf("failed to store frames: %w", err)
		}
		logger.Info("frames stored",
			slog.Int64("session", session.ID),
			slog.String("database", config.Storage.Database))
	}

	return writeSummary(out, config, result, session)
}

func storeResult(ctx context.Context, config *Config, result *sim.Result) (*survey.Session, error) {
	store := storage.NewSqliteStore(config.Storage.Database)
	defer store.Close()

	p := &config.Simulation.Protocol
	session, err := store.CreateSession(ctx, storage.SessionParams{
		Source:    sourceName,
		RootID:    uint8(p.RootID),
		NodeCount: p.NodeCount,
		Channels:  p.Channels,
		StartTime: sim.Start,
		Config:    config.Simulation,
	})
	if err != nil {
		return nil, err
	}

	frames := make([]*survey.Frame, len(result.Frames))
	for i, f := range result.Frames {
		frames[i] = toSurveyFrame(session.ID, f)
	}

	for chunk := range slices.Chunk(frames, config.Storage.MaxBatchSize) {
		if err = store.StoreFrames(ctx, chunk); err != nil {
			return nil, err
		}
	}

	return session, nil
}

func toSurveyFrame(sessionID int64, f *protocol.AggregatedFrame) *survey.Frame {
	frame := survey.NewFrame(sessionID, f.Epoch, f.Channel, f.SenderID, f.Timestamp, f.RSSI)
	frame.TimedOut = f.TimedOut
	return frame
}

func writeSummary(out io.Writer, config *Config, result *sim.Result, session *survey.Session) error {
	var timedOut int
	for _, f := range result.Frames {
		if f.TimedOut {
			timedOut++
		}
	}

	fmt.Fprintf(out, "simulated %s in %s events, seed %d\n",
		result.Elapsed, humanize.Comma(int64(result.Events)), config.Simulation.Seed)
	fmt.Fprintf(out, "frames: %s shipped, %s timed out (%.1f%%)\n",
		humanize.Comma(int64(len(result.Frames))), humanize.Comma(int64(timedOut)), percent(timedOut, len(result.Frames)))
	if session != nil {
		fmt.Fprintf(out, "session: %d (%s)\n", session.ID, session.UUID)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "node\trole\tstate\tepoch\tbeacons\treceived\tforwarded\tdropped\tadopted\tmisses\t")
	for i, s := range result.Status {
		if s.Role == "" {
			fmt.Fprintf(w, "%d\tdead\t\t\t\t\t\t\t\t\t\n", i)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%d\t%d\t\n",
			i, s.Role, s.State, s.Epoch,
			humanize.Comma(int64(s.Stats.BeaconsSent)),
			humanize.Comma(int64(s.Stats.Received)),
			humanize.Comma(int64(s.Stats.Forwarded)),
			humanize.Comma(int64(s.Stats.Dropped)),
			s.Stats.EpochsAdopted, s.Misses)
	}

	return w.Flush()
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
