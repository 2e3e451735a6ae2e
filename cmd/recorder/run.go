// cmd/recorder/run.go
package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/capture-sync/internal/capture"
	"github.com/tamzrod/capture-sync/internal/config"
	"github.com/tamzrod/capture-sync/internal/publish"
	"github.com/tamzrod/capture-sync/internal/segment"
	"github.com/tamzrod/capture-sync/internal/source"
	"github.com/tamzrod/capture-sync/internal/syncclient"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Record every configured device until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecorder(cmd.Context(), v.GetString("config"), afero.NewOsFs(), slog.Default())
		},
	}
	cmd.Flags().StringP("config", "c", "capture-sync.yaml", "path to the recorder config")
	_ = v.BindPFlag("config", cmd.Flags().Lookup("config"))
	return cmd
}

// runRecorder loads the config and runs one controller per device until
// ctx is cancelled or every source is exhausted. Devices are independent:
// a fatal error on one does not stop the others.
func runRecorder(ctx context.Context, path string, fs afero.Fs, log *slog.Logger) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(path)
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "config validation failed")
	}
	config.Normalize(cfg)

	rc := cfg.Recorder
	log.Info("capture-sync starting",
		"version", version,
		"devices", len(rc.Devices),
		"output_root", rc.OutputRoot,
		"server", rc.Server.Endpoint,
	)

	// ---- status export (optional) ----
	reporters, closeStatus, err := publish.Build(rc, log)
	if err != nil {
		return errors.Wrap(err, "status export")
	}
	defer closeStatus()

	// --------------------
	// One pipeline per device
	// --------------------

	var g errgroup.Group
	for _, d := range rc.Devices {
		d := d // per-iteration copy (go.mod targets go 1.21 loop semantics)
		g.Go(func() error {
			rep := reporters[d.DeviceID]
			if err := runDevice(ctx, rc, d, fs, rep, log); err != nil {
				log.Error("device failed", "device", d.DeviceID, "error", err)
				return errors.Wrapf(err, "device %d", d.DeviceID)
			}
			return nil
		})
	}
	return g.Wait()
}

func runDevice(ctx context.Context, rc config.RecorderConfig, d config.DeviceConfig, fs afero.Fs, rep *publish.Reporter, log *slog.Logger) error {
	dlog := log.With("device", d.DeviceID)

	// ---- coordination session ----
	var tr syncclient.Transport = syncclient.Offline{}
	if rc.Server.Endpoint != "" {
		tcp, err := syncclient.NewTCP(rc.Server.Endpoint, d.ExchangeTimeout)
		if err != nil {
			return err
		}
		tr = tcp
	}
	sess := syncclient.NewSession(d.DeviceID, tr, d.ExchangeTimeout, dlog)

	// ---- segment writer ----
	w, err := segment.NewWriter(segment.BuildConfig(rc.OutputRoot, d, fs, dlog))
	if err != nil {
		return err
	}

	// ---- frame source ----
	src, err := source.Build(d)
	if err != nil {
		return err
	}

	ccfg := capture.Config{
		DeviceID:          d.DeviceID,
		Policy:            d.SyncPolicy,
		SegmentFrameLimit: d.SegmentFrameLimit,
		MaxTotalFrames:    d.MaxTotalFrames,
		Log:               dlog,
	}

	// Status reporter runs beside the loop and outlives it by one flush.
	var wg sync.WaitGroup
	repCtx, stopRep := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		stopRep()
		wg.Wait()
	}()
	if rep != nil {
		ccfg.Observer = rep
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep.Run(repCtx)
		}()
	}

	ctl, err := capture.New(ccfg, src, sess, w)
	if err != nil {
		_ = src.Close()
		return err
	}

	_, err = ctl.Run(ctx)
	return err
}
