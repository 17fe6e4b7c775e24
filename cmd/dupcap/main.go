package main

import (
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/cobra"

	"github.com/dupcap/dupcap/internal/capture"
	"github.com/dupcap/dupcap/internal/config"
	"github.com/dupcap/dupcap/internal/logging"
	"github.com/dupcap/dupcap/internal/stream"
)

var (
	version = "0.1.0"
	cfgFile string
	cfg     *config.Config

	outputIndex int
	jsonOutput  bool
	shotPath    string
	fullDesktop bool
	benchTime   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "dupcap",
	Short: "Desktop duplication screen capture",
	Long:  `dupcap captures the Windows desktop through DXGI desktop duplication: screenshots, benchmarks, and WebSocket MJPEG streaming.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg.Validate()
		if cmd.Flags().Changed("output") {
			cfg.Output = outputIndex
		}
		logging.Init(cfg.LogFormat, cfg.LogLevel, nil)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List capturable outputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		defer m.Close()

		monitors := m.Monitors()
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(monitors)
		}
		for _, mon := range monitors {
			primary := ""
			if mon.Primary {
				primary = " (primary)"
			}
			fmt.Printf("%d: %s %dx%d at %d,%d%s\n",
				mon.Index, mon.Name, mon.Width, mon.Height, mon.X, mon.Y, primary)
		}
		return nil
	},
}

var shotCmd = &cobra.Command{
	Use:   "shot",
	Short: "Capture a screenshot to a PNG file",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		defer m.Close()

		var frame *capture.Frame
		if fullDesktop {
			frame, err = m.CaptureDesktop()
		} else {
			frame, err = m.Capture()
		}
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		defer frame.Release()

		f, err := os.Create(shotPath)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := png.Encode(f, frame.ToRGBA()); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		fmt.Printf("wrote %s (%dx%d)\n", shotPath, frame.Width, frame.Height)
		return nil
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Serve the desktop as a WebSocket MJPEG stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		defer m.Close()

		server := stream.NewServer(m, stream.Config{
			Quality:     cfg.Quality,
			ScaleFactor: cfg.ScaleFactor,
			MaxFPS:      cfg.MaxFPS,
		})
		mux := http.NewServeMux()
		mux.Handle("/stream", server)

		fmt.Printf("streaming on ws://%s/stream\n", cfg.ListenAddr)
		return http.ListenAndServe(cfg.ListenAddr, mux)
	},
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure capture throughput",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager()
		if err != nil {
			return err
		}
		defer m.Close()

		// Prime the CPU sampler; the second Percent call reports usage
		// across the benchmark window.
		cpu.Percent(0, false)

		frames, timeouts := 0, 0
		start := time.Now()
		for time.Since(start) < benchTime {
			frame, err := m.Capture()
			if err != nil {
				timeouts++
				continue
			}
			frame.Release()
			frames++
		}
		elapsed := time.Since(start)

		fps := float64(frames) / elapsed.Seconds()
		fmt.Printf("%d frames in %v (%.1f fps, %d timeouts)\n",
			frames, elapsed.Round(time.Millisecond), fps, timeouts)

		if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
			fmt.Printf("cpu: %.1f%%\n", pct[0])
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dupcap v%s\n", version)
	},
}

func newManager() (*capture.Manager, error) {
	return capture.NewManager(nil, capture.Options{
		Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		Output:  cfg.Output,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is dupcap.yaml in the system config dir)")
	rootCmd.PersistentFlags().IntVar(&outputIndex, "output", -1, "output index to capture (-1 = primary)")

	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON")
	shotCmd.Flags().StringVar(&shotPath, "out", "screenshot.png", "output file")
	shotCmd.Flags().BoolVar(&fullDesktop, "desktop", false, "compose every output into one image")
	benchCmd.Flags().DurationVar(&benchTime, "duration", 5*time.Second, "benchmark duration")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(shotCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
