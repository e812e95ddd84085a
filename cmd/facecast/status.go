package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-facecast/internal/httpc"
	"github.com/teslashibe/go-facecast/pkg/eyes"
	"github.com/teslashibe/go-facecast/pkg/session"
)

var apiURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state of a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap session.Snapshot
		if err := httpc.NewAPI(apiURL).GetJSON(cmd.Context(), "/api/status", &snap); err != nil {
			return err
		}
		printSnapshot(snap)
		return nil
	},
}

// toggles maps set targets to their API paths.
var toggles = map[string]string{
	"tracking":  "/api/tracking",
	"eyes":      "/api/eyes",
	"transport": "/api/transport",
}

var setCmd = &cobra.Command{
	Use:       "set {tracking|eyes|transport} {on|off}",
	Short:     "Toggle a feature on a running server",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"tracking", "eyes", "transport"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, ok := toggles[args[0]]
		if !ok {
			return fmt.Errorf("unknown feature %q", args[0])
		}
		enabled, err := parseOnOff(args[1])
		if err != nil {
			return err
		}

		var snap session.Snapshot
		err = httpc.NewAPI(apiURL).SendJSON(cmd.Context(), http.MethodPost, path,
			map[string]bool{"enabled": enabled}, &snap)
		var se *httpc.StatusError
		if errors.As(err, &se) && se.Code == http.StatusConflict {
			return fmt.Errorf("%s refused: %s", args[0], se.Message)
		}
		if err != nil {
			return err
		}

		fmt.Printf("✅ %s %s\n", args[0], args[1])
		printSnapshot(snap)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, setCmd} {
		c.Flags().StringVar(&apiURL, "url", "http://localhost:8080", "facecast server URL")
		rootCmd.AddCommand(c)
	}
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func printSnapshot(s session.Snapshot) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "TRACKING\t%s (requested: %v)\n", s.Sensor, s.TrackingRequested)
	fmt.Fprintf(w, "FACES\t%d\n", s.TrackedFaces)
	if s.TrackingID != nil {
		fmt.Fprintf(w, "TRACKING ID\t%s\n", s.TrackingID)
	}
	fmt.Fprintf(w, "EYES\t%s | %s (enabled: %v)\n", eyeString(s.LeftEye), eyeString(s.RightEye), s.EyeTracking)
	fmt.Fprintf(w, "TRANSPORT\tenabled: %v, successes: %d, failed: %v\n",
		s.TransportEnabled, s.Transport.ConsecutiveSuccesses, s.Transport.Failed)
	fmt.Fprintf(w, "CYCLE\t%d (last payload %d bytes)\n", s.Cycle, s.LastPayload)
	w.Flush()
}

func eyeString(s *eyes.State) string {
	if s == nil {
		return "unknown"
	}
	return s.String()
}
