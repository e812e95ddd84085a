package main

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/teslashibe/go-facecast/pkg/eyes"
	"github.com/teslashibe/go-facecast/pkg/face"
	"github.com/teslashibe/go-facecast/pkg/record"
	"github.com/teslashibe/go-facecast/pkg/transport"
)

var listenAddr string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive face records and print one line per face",
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenAddr, "addr", fmt.Sprintf(":%d", transport.DefaultPort), "UDP listen address")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	rx, err := transport.Listen(listenAddr)
	if err != nil {
		return err
	}
	defer rx.Close()

	fmt.Printf("👂 Listening for face records on %s\n", rx.Addr())
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()

	tracker := newEyeTracker()
	return rx.Serve(cmd.Context(), func(from net.Addr, records []record.Record, err error) {
		defer tracker.endDatagram()
		if err != nil {
			fmt.Printf("⚠️  %s: %v\n", from, err)
			return
		}
		for _, r := range records {
			fmt.Println(formatRecord(r, tracker.next(r)))
		}
	})
}

type eyePair struct {
	left, right eyes.State
}

// Faces missing from this many consecutive datagrams are forgotten.
const evictAfterDatagrams = 300

type trackedEyes struct {
	eyes eyePair
	seen uint64
}

// eyeTracker reclassifies received records per face identity.
type eyeTracker struct {
	datagrams uint64
	states    map[uuid.UUID]trackedEyes
}

func newEyeTracker() *eyeTracker {
	return &eyeTracker{states: make(map[uuid.UUID]trackedEyes)}
}

func (t *eyeTracker) next(r record.Record) eyePair {
	prev := eyePair{eyes.InitialState(), eyes.InitialState()}
	if s, ok := t.states[r.ID]; ok {
		prev = s.eyes
	}
	bs := r.Shapes()
	cur := eyePair{
		left:  eyes.LeftEye.Next(prev.left, bs),
		right: eyes.RightEye.Next(prev.right, bs),
	}
	t.states[r.ID] = trackedEyes{eyes: cur, seen: t.datagrams}
	return cur
}

// endDatagram closes the current datagram and evicts stale faces.
func (t *eyeTracker) endDatagram() {
	t.datagrams++
	for id, s := range t.states {
		if t.datagrams-s.seen > evictAfterDatagrams {
			delete(t.states, id)
		}
	}
}

func formatRecord(r record.Record, e eyePair) string {
	return fmt.Sprintf("🙂 %s pos=(%+.3f %+.3f %+.3f) fwd=(%+.2f %+.2f %+.2f) eyes=%s|%s jaw=%.2f",
		r.ID.String()[:8],
		r.Position.X(), r.Position.Y(), r.Position.Z(),
		r.Forward.X(), r.Forward.Y(), r.Forward.Z(),
		e.left, e.right,
		r.BlendShape(face.JawOpen))
}
