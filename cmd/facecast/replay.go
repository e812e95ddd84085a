package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-facecast/internal/config"
	"github.com/teslashibe/go-facecast/pkg/protocol"
	"github.com/teslashibe/go-facecast/pkg/sensor"
)

var replayOpts struct {
	url       string
	device    string
	token     string
	synthetic int
	rate      float64
	duration  time.Duration
	loop      bool
}

var replayCmd = &cobra.Command{
	Use:   "replay [script.yaml]",
	Short: "Act as a sensor device, streaming a script or synthetic faces",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayOpts.url, "url", "ws://localhost:8080/ws/sensor/replay", "sensor WebSocket URL")
	f.StringVar(&replayOpts.device, "device", "facecast-replay", "device name sent in the hello")
	f.StringVar(&replayOpts.token, "token", "", "device token (default: $FACECAST_SENSOR_TOKEN)")
	f.IntVar(&replayOpts.synthetic, "synthetic", 1, "number of synthetic faces when no script is given")
	f.Float64Var(&replayOpts.rate, "rate", 60, "updates per second")
	f.DurationVar(&replayOpts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	f.BoolVar(&replayOpts.loop, "loop", false, "restart the script when it ends")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rate := replayOpts.rate

	var src frameSource
	if len(args) == 1 {
		script, err := LoadScript(args[0])
		if err != nil {
			return err
		}
		frames, err := script.Expand()
		if err != nil {
			return err
		}
		if script.Rate > 0 && !cmd.Flags().Changed("rate") {
			rate = script.Rate
		}
		src = newScriptSource(frames, replayOpts.loop)
		fmt.Printf("🎬 Replaying %s (%d updates)\n", args[0], len(frames))
	} else {
		if replayOpts.synthetic < 1 {
			return errors.New("--synthetic must be at least 1")
		}
		src = newSynthetic(replayOpts.synthetic, rate)
		fmt.Printf("🎬 Streaming %d synthetic face(s)\n", replayOpts.synthetic)
	}
	if rate <= 0 {
		return fmt.Errorf("invalid rate %v", rate)
	}

	token := replayOpts.token
	if token == "" {
		token = config.SensorToken()
	}

	client, err := sensor.Dial(ctx, replayOpts.url)
	if err != nil {
		return err
	}
	defer client.Close()

	welcome, err := client.Hello(replayOpts.device, token)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Connected to %s as %s\n", replayOpts.url, welcome.Device)

	if replayOpts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, replayOpts.duration)
		defer cancel()
	}

	go client.Listen(ctx, (&statusPrinter{}).print)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			return finishReplay(client, src, sent)
		case <-ticker.C:
		}

		frame, ok := src.Next()
		if !ok {
			return finishReplay(client, src, sent)
		}
		if len(frame.Removed) > 0 {
			if err := client.SendRemoved(frame.Removed); err != nil {
				return err
			}
		}
		if err := client.SendFaces(frame.Faces); err != nil {
			return err
		}
		sent++
	}
}

// finishReplay reports the faces still on screen as removed.
func finishReplay(client *sensor.Client, src frameSource, sent int) error {
	if ids := src.IDs(); len(ids) > 0 {
		if err := client.SendRemoved(ids); err != nil {
			return err
		}
	}
	fmt.Printf("👋 Sent %d updates\n", sent)
	return nil
}

// statusPrinter prints status changes, ignoring the success streak.
type statusPrinter struct {
	last *protocol.StatusData
}

func (p *statusPrinter) print(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeStatus:
		s, err := msg.GetStatusData()
		if err != nil {
			return
		}
		key := *s
		key.ConsecutiveSuccesses = 0
		if p.last != nil && *p.last == key {
			return
		}
		p.last = &key
		tx := "off"
		if s.TransportEnabled {
			tx = fmt.Sprintf("ok×%d", s.ConsecutiveSuccesses)
			if s.TransportFailed {
				tx = "failing"
			}
		}
		fmt.Printf("📊 tracking=%v faces=%d eyes=%s|%s udp=%s\n",
			s.TrackingActive, s.TrackedFaces, orUnknown(s.LeftEye), orUnknown(s.RightEye), tx)
	case protocol.TypeError:
		if e, err := msg.GetErrorData(); err == nil {
			fmt.Printf("⚠️  server: %s\n", e.Message)
		}
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
