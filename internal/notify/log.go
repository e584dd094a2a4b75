package notify

import (
	"context"

	logx "taskd/pkg/logx"
)

// LogSink writes notifications to the structured log. It is the default
// channel and the fallback when no external delivery is configured.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Notify(ctx context.Context, n Notification) error {
	_ = ctx
	s.log.Info("reminder",
		logx.Int64("task_id", n.TaskID),
		logx.String("title", n.Title),
		logx.Time("due_at", n.DueAt),
		logx.String("text", n.text()))
	return nil
}
