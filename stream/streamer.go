package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/darkroomengineering/satus-sub000/fluid"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

// StreamerOptions configures a Streamer.
type StreamerOptions struct {
	Interval      time.Duration // Wall time between steps (default 33ms)
	DT            float32       // Simulation time per step (default Interval in seconds)
	Resolution    int           // Edge of the broadcast frame (default 64)
	StatsInterval int           // Steps between field samples; 0 disables
	Output        *telemetry.OutputManager
	Logger        *slog.Logger
}

// Streamer steps a simulation on a ticker and broadcasts its flow field.
// It owns the simulation for as long as Run executes.
type Streamer struct {
	sim  *fluid.Simulation
	hub  *Hub
	opts StreamerOptions
	log  *slog.Logger

	simTime float64
	frames  int
}

// NewStreamer creates a streamer. sim should drain hub as its splat source.
func NewStreamer(sim *fluid.Simulation, hub *Hub, opts StreamerOptions) *Streamer {
	if opts.Interval <= 0 {
		opts.Interval = 33 * time.Millisecond
	}
	if opts.DT <= 0 {
		opts.DT = float32(opts.Interval.Seconds())
	}
	if opts.Resolution <= 0 {
		opts.Resolution = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Streamer{sim: sim, hub: hub, opts: opts, log: opts.Logger}
}

// Frames returns the number of frames broadcast so far.
func (s *Streamer) Frames() int { return s.frames }

// Tick advances the simulation one step and broadcasts the result when
// anyone is listening.
func (s *Streamer) Tick() error {
	density := s.sim.Step(s.opts.DT)
	if err := s.sim.Err(); err != nil {
		return fmt.Errorf("stream: step: %w", err)
	}
	s.simTime += float64(s.opts.DT)

	if n := s.opts.StatsInterval; n > 0 && s.sim.Steps()%n == 0 {
		rec, err := s.sim.Sample(s.simTime)
		if err != nil {
			return fmt.Errorf("stream: sample: %w", err)
		}
		if err := s.opts.Output.WriteStep(rec); err != nil {
			s.log.Warn("step record not written", "error", err)
		}
		s.log.Debug("field sample", "record", rec)
	}

	if s.hub.Clients() == 0 {
		return nil
	}
	data, err := s.sim.Readback(density)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	w, h := density.Size()
	frame := Downsample(data, w, h, s.opts.Resolution)
	frame.Step = s.sim.Steps()
	if s.hub.Broadcast(frame.Encode()) > 0 {
		s.frames++
	}
	return nil
}

// Run ticks until ctx is done or a step fails.
func (s *Streamer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.log.Info("streamer started", "interval", s.opts.Interval, "resolution", s.opts.Resolution)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("streamer stopped", "steps", s.sim.Steps(), "frames", s.frames)
			return nil
		case <-ticker.C:
			if err := s.Tick(); err != nil {
				return err
			}
		}
	}
}
