package reminder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskd/internal/eventbus"
	"taskd/internal/notify"
	"taskd/internal/task"
	logx "taskd/pkg/logx"
)

type DigestConfig struct {
	Enabled  bool
	Schedule string
	Timezone string
}

// Digest sends a scheduled summary of due-today and overdue tasks through
// the notification sink. The schedule is a cron spec evaluated in the
// configured timezone (local time when empty).
type Digest struct {
	mu  sync.Mutex
	cfg DigestConfig

	repo task.Repository
	sink notify.Sink
	bus  eventbus.Bus
	log  logx.Logger

	parser cron.Parser
	c      *cron.Cron
	now    func() time.Time
}

func NewDigest(cfg DigestConfig, repo task.Repository, sink notify.Sink, bus eventbus.Bus, log logx.Logger) *Digest {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Digest{
		cfg:  cfg,
		repo: repo,
		sink: sink,
		bus:  bus,
		log:  log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    time.Now,
	}
}

// ValidateSchedule parses a cron spec the way the digest will; used by the
// config validator so a bad spec is rejected before it is committed.
func (d *Digest) ValidateSchedule(spec string) error {
	_, err := d.parser.Parse(spec)
	return err
}

func (d *Digest) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startLocked()
}

func (d *Digest) startLocked() error {
	if !d.cfg.Enabled || d.c != nil {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(d.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("digest timezone: %w", err)
		}
		loc = l
	}

	c := cron.New(cron.WithParser(d.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(d.cfg.Schedule, func() { d.run(context.Background()) }); err != nil {
		return fmt.Errorf("digest schedule %q: %w", d.cfg.Schedule, err)
	}
	c.Start()
	d.c = c
	d.log.Info("digest scheduled", logx.String("schedule", d.cfg.Schedule), logx.String("tz", loc.String()))
	return nil
}

func (d *Digest) Stop(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	d.c = nil
	d.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply restarts the cron entry when schedule, timezone or enablement change.
func (d *Digest) Apply(cfg DigestConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cfg == d.cfg {
		return nil
	}
	d.cfg = cfg
	if d.c != nil {
		<-d.c.Stop().Done()
		d.c = nil
	}
	return d.startLocked()
}

func (d *Digest) run(ctx context.Context) {
	now := d.now()
	tasks, err := d.repo.List(ctx)
	if err != nil {
		d.log.Error("digest scan failed", logx.Err(err))
		return
	}

	body, count := buildDigest(tasks, now)
	if count == 0 {
		d.log.Debug("digest skipped, nothing due")
		return
	}

	n := notify.Notification{Body: body}
	if err := d.sink.Notify(ctx, n); err != nil {
		d.log.Warn("digest dispatch failed", logx.Err(err))
		return
	}
	d.log.Debug("digest sent", logx.Int("tasks", count))
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeDigestSent, Data: count})
	}
}

// buildDigest renders the summary for all open tasks that are overdue or due
// before the end of now's calendar day. Returns the text and the task count.
func buildDigest(tasks []task.Task, now time.Time) (string, int) {
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())

	var overdue, dueToday []task.Task
	for _, t := range tasks {
		if t.Status == task.StatusComplete || t.DueAt == nil {
			continue
		}
		switch {
		case t.DueAt.Before(now):
			overdue = append(overdue, t)
		case !t.DueAt.After(endOfDay):
			dueToday = append(dueToday, t)
		}
	}

	count := len(overdue) + len(dueToday)
	if count == 0 {
		return "", 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task digest for %s\n", now.Format("Mon, 02 Jan 2006"))
	if len(overdue) > 0 {
		fmt.Fprintf(&b, "\nOverdue (%d):\n", len(overdue))
		for _, t := range overdue {
			fmt.Fprintf(&b, "  - %s (due %s)\n", t.Title, t.DueAt.Format("02 Jan 15:04"))
		}
	}
	if len(dueToday) > 0 {
		fmt.Fprintf(&b, "\nDue today (%d):\n", len(dueToday))
		for _, t := range dueToday {
			fmt.Fprintf(&b, "  - %s (due %s)\n", t.Title, t.DueAt.Format("15:04"))
		}
	}
	return b.String(), count
}
