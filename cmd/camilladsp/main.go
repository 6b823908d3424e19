// Command camilladsp runs the realtime capture -> processing -> playback
// pipeline against a YAML configuration file.
//
// Flag parsing follows the teacher pack's spf13/pflag cmd/*/main.go
// pattern (doismellburning-samoyed): parse flags, load config, run.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/rustyguts/camilladsp/internal/biquad"
	"github.com/rustyguts/camilladsp/internal/config"
	"github.com/rustyguts/camilladsp/internal/device"
	"github.com/rustyguts/camilladsp/internal/device/portaudiodevice"
	"github.com/rustyguts/camilladsp/internal/graph"
	"github.com/rustyguts/camilladsp/internal/message"
	"github.com/rustyguts/camilladsp/internal/metrics"
	"github.com/rustyguts/camilladsp/internal/pipeline"

	captureactor "github.com/rustyguts/camilladsp/internal/capture"
	playbackactor "github.com/rustyguts/camilladsp/internal/playback"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "path to pipeline config YAML (default: platform config dir)")
		metricsAddr = pflag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
		verbose    = pflag.BoolP("verbose", "v", false, "enable debug logging")
	)
	pflag.Parse()

	logger := log.New(os.Stderr)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading config", "err", err)
	}

	sup, err := build(cfg, logger)
	if err != nil {
		logger.Fatal("building pipeline", "err", err)
	}

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(sup.CaptureStatus(), sup.PlaybackStatus()))
		go func() {
			http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Error("metrics server exited", "err", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		sup.Stop()
	}()

	reason := sup.Run()
	logReason(logger, reason)
	if reason.Kind != message.StopDone && reason.Kind != message.StopNone {
		os.Exit(1)
	}
}

// build wires a config.Config into a runnable pipeline.Supervisor: real
// PortAudio capture/playback backends behind the generic §4.1/§4.2 actors,
// and a reference processing graph built from the configured filter list.
func build(cfg config.Config, logger *log.Logger) (*pipeline.Supervisor, error) {
	captureFormat, err := cfg.Capture.SampleFormat()
	if err != nil {
		return nil, err
	}
	playbackFormat, err := cfg.Playback.SampleFormat()
	if err != nil {
		return nil, err
	}

	captureBackend := portaudiodevice.NewCapture(cfg.Capture.Device)
	playbackBackend := portaudiodevice.NewPlayback(cfg.Playback.Device)

	captureCfg := captureactor.Config{
		SampleRate:                 cfg.Capture.SampleRate,
		Channels:                   cfg.Capture.Channels,
		Format:                     captureFormat,
		ChunkFrames:                cfg.ChunkSize,
		UpdateIntervalSeconds:      cfg.UpdateIntervalSec,
		RateMeasureIntervalSeconds: cfg.RateAdjust.RateMeasureInterval,
		ThresholdRatio:             cfg.RateAdjust.ThresholdRatio,
		ThresholdCount:             cfg.RateAdjust.ThresholdCount,
		StopOnRateChange:           cfg.RateAdjust.StopOnRateChange,
		SilenceThresholdDb:         cfg.Silence.ThresholdDb,
		SilenceTimeoutSeconds:      cfg.Silence.TimeoutSec,
		Retry:                      cfg.RetryOnError,
		AvoidBlocking:              cfg.AvoidBlocking,
	}
	playbackCfg := playbackactor.Config{
		SampleRate:          cfg.Playback.SampleRate,
		Channels:            cfg.Playback.Channels,
		Format:              playbackFormat,
		ChunkFrames:         cfg.ChunkSize,
		TargetLevelFrames:   cfg.RateAdjust.TargetLevel,
		AdjustPeriodSeconds: cfg.RateAdjust.AdjustPeriod,
		AdjustEnabled:       cfg.RateAdjust.Enabled,
	}

	captureAct := captureactor.New(captureBackend, captureCfg, logger)
	playbackAct := playbackactor.New(playbackBackend, playbackCfg, logger)

	params := message.NewProcessingParameters()
	stages := make([]graph.Stage, 0, len(cfg.Filters)+1)
	for _, fc := range cfg.Filters {
		coeffs, err := buildCoefficients(fc, float64(cfg.Capture.SampleRate))
		if err != nil {
			return nil, err
		}
		stages = append(stages, graph.NewFilter(coeffs, cfg.Capture.Channels))
	}
	stages = append(stages, graph.NewGain(params))
	chain := graph.NewChain(stages...)

	pipelineCfg := pipeline.Config{
		Capture:    captureAct,
		Processing: chain,
		Playback:   playbackAct,
		Channels:   cfg.Capture.Channels,
	}
	return pipeline.New(pipelineCfg, logger), nil
}

func buildCoefficients(fc config.FilterConfig, fs float64) (biquad.Coefficients, error) {
	switch fc.Type {
	case "free":
		return biquad.Free(fc.A1, fc.A2, fc.B0, fc.B1, fc.B2), nil
	case "lowpass":
		return biquad.Lowpass(fc.Freq, fs, fc.Q), nil
	case "highpass":
		return biquad.Highpass(fc.Freq, fs, fc.Q), nil
	case "peaking":
		return biquad.Peaking(fc.Freq, fs, fc.Q, fc.Gain), nil
	case "highshelf":
		return biquad.Highshelf(fc.Freq, fs, fc.Slope, fc.Gain), nil
	case "lowshelf":
		return biquad.Lowshelf(fc.Freq, fs, fc.Slope, fc.Gain), nil
	default:
		return biquad.Coefficients{}, &device.FatalError{Err: unknownFilterType(fc.Type)}
	}
}

type unknownFilterType string

func (e unknownFilterType) Error() string { return "config: unknown filter type " + string(e) }

func logReason(logger *log.Logger, r message.StopReason) {
	switch r.Kind {
	case message.StopDone:
		logger.Info("pipeline finished cleanly")
	case message.StopCaptureError:
		logger.Error("pipeline stopped: capture error", "text", r.Text)
	case message.StopPlaybackError:
		logger.Error("pipeline stopped: playback error", "text", r.Text)
	case message.StopCaptureFormatChange:
		logger.Warn("pipeline stopped: capture format change", "rate", r.Rate)
	case message.StopPlaybackFormatChange:
		logger.Warn("pipeline stopped: playback format change", "rate", r.Rate)
	default:
		logger.Warn("pipeline stopped", "reason", r.Kind)
	}
}
