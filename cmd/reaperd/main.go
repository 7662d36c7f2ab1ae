// Command reaperd is reaper's daemon entrypoint: it loads configuration,
// opens the Store, recovers from any prior crash, and runs the Worker,
// Scheduler, Broadcaster, and Monitor loops until terminated. No transport
// layer lives here; reaperd wires only the core that a separate API or CLI
// front-end would call into.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"reaper/internal/app"
	"reaper/internal/broadcast"
	"reaper/internal/config"
	"reaper/internal/logger"
	"reaper/internal/model"
	"reaper/internal/monitor"
	"reaper/internal/notify"
	"reaper/internal/recovery"
	"reaper/internal/scheduler"
	"reaper/internal/scythe"
	"reaper/internal/state"
	"reaper/internal/store"
	"reaper/internal/user"
	"reaper/internal/worker"
)

// stdoutEmitter is a minimal Emitter used until a transport layer is wired
// in; it satisfies broadcast.Emitter so the Broadcaster has somewhere to
// send snapshots.
type stdoutEmitter struct{}

func (stdoutEmitter) Emit(snap broadcast.Snapshot) {
	logger.Log.Debug().
		Str("event", snap.Event).
		Strs("sections", snap.Sections).
		Uint64("queue_version", snap.QueueVersion).
		Uint64("history_version", snap.HistoryVersion).
		Uint64("current_version", snap.CurrentVersion).
		Uint64("scythe_version", snap.ScytheVersion).
		Int("queue_len", len(snap.Queue)).
		Msg("state changed")
}

// scytheLister adapts *scythe.Manager to broadcast.ScytheLister.
type scytheLister struct{ mgr *scythe.Manager }

func (s scytheLister) List() ([]model.Scythe, error) { return s.mgr.List() }

func main() {
	paths, err := app.GetPaths()
	if err != nil {
		panic(err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		panic(err)
	}

	if err := logger.Init(paths.DataDir); err != nil {
		panic(err)
	}

	cfg, err := config.Load(paths.DataDir)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to load configuration")
	}

	st, err := store.New(paths.DataDir)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	sm := state.New(st)
	if err := sm.LoadFromStore(); err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to load persisted queue")
	}

	recovery.Run(recovery.Config{TempDir: cfg.TempDir, LogsDir: paths.LogsDir()}, st, sm)

	notifier := notify.New(func() bool { return cfg.Get().DesktopNotifications })

	ytDlpPath, err := paths.ResolveBinary("yt-dlp", "")
	if err != nil {
		logger.Log.Warn().Err(err).Msg("yt-dlp binary not found; jobs will fail to start until one is available")
	}
	ffmpegDir := ""
	if ffmpegPath, err := paths.ResolveBinary("ffmpeg", ""); err == nil {
		ffmpegDir = filepath.Dir(ffmpegPath)
	}

	wk := worker.New(worker.Config{
		DownloadDir: cfg.DownloadDir,
		TempDir:     cfg.TempDir,
		LogsDir:     paths.LogsDir(),
		CookieFile:  paths.CookiesFile(),
		YtDlpPath:   ytDlpPath,
		FFmpegDir:   ffmpegDir,
	}, sm)

	sched := scheduler.New(st, sm, func() string { return cfg.Get().UserTimezone }, notifier)
	scytheMgr := scythe.New(st, sm, sched)
	_ = user.New(st) // hook point for a future API's account endpoints

	bc := broadcast.New(sm, scytheLister{scytheMgr}, stdoutEmitter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := cfg.Watch(func(reloaded *config.Config) {
		cfg.Update(func(c *config.Config) { *c = *reloaded })
		sched.Reload()
	})
	if err != nil {
		logger.Log.Warn().Err(err).Msg("could not start config watcher; live reload disabled")
	} else {
		defer stop()
	}

	workerDone := make(chan struct{})
	schedulerDone := make(chan struct{})

	go func() { wk.Run(ctx); close(workerDone) }()
	go func() { sched.Run(ctx); close(schedulerDone) }()
	go bc.Run(ctx)
	go monitor.New(workerDone, schedulerDone, notifier).Run(ctx)

	logger.Log.Info().
		Str("download_dir", cfg.DownloadDir).
		Str("temp_dir", cfg.TempDir).
		Msg("reaper started")

	waitForShutdown()

	logger.Log.Info().Msg("reaper shutting down")
	wk.Stop()
	sched.Stop()
	cancel()
	<-workerDone
	<-schedulerDone
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
