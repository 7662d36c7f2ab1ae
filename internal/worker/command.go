package worker

import (
	"reaper/internal/command"
	"reaper/internal/model"
)

func buildArgv(job model.Job, scratch string, cfg Config) []string {
	return command.Build(job, scratch, cfg.CookieFile, cfg.YtDlpPath, cfg.FFmpegDir)
}
