package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/veilcap/veilcap/internal/adapters/maskfile"
	"github.com/veilcap/veilcap/internal/cliconfig"
	logpkg "github.com/veilcap/veilcap/pkg/log"
	"github.com/veilcap/veilcap/pkg/veilcap"
)

const longHelp = `
veilcap records every display to per-display video files plus one audio
file, blacks out the windows of chosen applications, and rides out
transient capture service failures by restarting the stream into the
same output files.

Highlights:
  - One continuous MP4 per display, one M4A with system and microphone
    tracks (or a single mixed track).
  - Masked applications stay masked even when partially covered.
  - Machine-readable JSON lines on stdout describe the output files and
    the final stop reason.
`

var exampleUsage = strings.TrimSpace(`
  veilcap --output-dir ./recordings
  veilcap --output-dir ./recordings --duration 1h --mask-app 1Password
  veilcap --output-dir ./recordings --audio-mode merged --mask-file ~/.veilcap/mask.txt
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string
	exitCode := 0

	root := &cobra.Command{
		Use:           "veilcap",
		Short:         "Record displays and audio with application masking",
		Long:          strings.TrimSpace(longHelp),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}
			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadConfigFile(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			zl := cliconfig.Logger(cfg.Verbose)
			logger := logpkg.NewZerolog(zl)

			capture, err := veilcap.New(veilcap.Config{
				OutputDir:        cfg.OutputDir,
				BaseName:         cfg.BaseName,
				FrameRate:        cfg.FrameRate,
				Duration:         cfg.Duration,
				Audio:            cfg.Audio,
				AudioMode:        cfg.AudioMode,
				SampleRate:       cfg.SampleRate,
				VideoBitrateKbps: cfg.VideoBitrateKbps,
				AudioBitrateKbps: cfg.AudioBitrateKbps,
				KeyframeInterval: cfg.KeyframeInterval,
				MaskApps:         cfg.MaskApps,
				MaskFile:         cfg.MaskFile,
				MaxRestarts:      cfg.MaxRestarts,
				RestartPause:     cfg.RestartPause,
				DrainTimeout:     cfg.DrainTimeout,
				FFmpegPath:       cfg.FFmpegPath,
				NativeAudio:      cfg.NativeAudio,
				RecoverableCodes: cfg.RecoverableCodes,
			},
				veilcap.WithLogger(logger),
				veilcap.WithDescriptorWriter(os.Stdout),
			)
			if err != nil {
				return fmt.Errorf("create capture: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Live mask list reload. The flag list still applies until
			// the file's first load.
			if cfg.MaskFile != "" {
				watcher := maskfile.NewWatcher(cfg.MaskFile, capture.SetMaskApps, logger)
				if err := watcher.Start(ctx); err != nil {
					return fmt.Errorf("mask file: %w", err)
				}
				defer watcher.Stop()
			}

			sigCh := make(chan os.Signal, 2)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig, ok := <-sigCh
				if !ok {
					return
				}
				num := signalNumber(sig)
				logger.Info("signal received, stopping", logpkg.Int("signal", num))
				capture.NoteSignal(num)
				exitCode = 128 + num
				cancel()

				// A second signal skips the drain and exits hard.
				if sig, ok = <-sigCh; ok {
					os.Exit(128 + signalNumber(sig))
				}
			}()

			reason, runErr := capture.Run(ctx)
			signal.Stop(sigCh)
			close(sigCh)

			switch reason {
			case veilcap.StopSignal:
				// exitCode was set by the signal watcher.
			case veilcap.StopCompleted:
				exitCode = 0
			default:
				exitCode = 1
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				logger.Error("capture ended with error",
					logpkg.String("reason", reason.String()),
					logpkg.Err(runErr))
			}
			return nil
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.veilcap/config.toml)")
	flags.StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "directory for output files (required)")
	flags.StringVar(&cfg.BaseName, "base-name", cfg.BaseName, "output file name prefix")
	flags.IntVar(&cfg.FrameRate, "frame-rate", cfg.FrameRate, "capture frame rate")
	flags.DurationVar(&cfg.Duration, "duration", cfg.Duration, "stop after this much recorded time (0 = until interrupted)")
	flags.IntVar(&cfg.VideoBitrateKbps, "video-bitrate", cfg.VideoBitrateKbps, "video bitrate in kbit/s")
	flags.IntVar(&cfg.KeyframeInterval, "keyframe-interval", cfg.KeyframeInterval, "frames between keyframes")
	flags.BoolVar(&cfg.Audio, "audio", cfg.Audio, "record system and microphone audio")
	flags.StringVar(&cfg.AudioMode, "audio-mode", cfg.AudioMode, "audio layout: dual or merged")
	flags.IntVar(&cfg.AudioBitrateKbps, "audio-bitrate", cfg.AudioBitrateKbps, "audio bitrate in kbit/s per track")
	flags.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "audio sample rate")
	flags.StringSliceVar(&cfg.MaskApps, "mask-app", cfg.MaskApps, "application name to black out (repeatable)")
	flags.StringVar(&cfg.MaskFile, "mask-file", cfg.MaskFile, "file with application names to black out, reloaded on change")
	flags.IntVar(&cfg.MaxRestarts, "max-restarts", cfg.MaxRestarts, "restart budget for transient capture errors")
	flags.DurationVar(&cfg.RestartPause, "restart-pause", cfg.RestartPause, "initial pause before a restart attempt")
	flags.DurationVar(&cfg.DrainTimeout, "drain-timeout", cfg.DrainTimeout, "bound on the shutdown drain")
	flags.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "path to the ffmpeg binary")
	flags.BoolVar(&cfg.NativeAudio, "native-audio", cfg.NativeAudio, "write audio natively as LPCM instead of through ffmpeg")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return exitCode
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return int(syscall.SIGTERM)
}
