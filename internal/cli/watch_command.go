package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/notify"
	"github.com/joseph-ayodele/orders-tracker/internal/repository"
)

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type jobLoadedMsg struct {
	job *entity.Job
	err error
}

type pollMsg struct{}

type pushMsg struct {
	status *notify.UploadStatus
	err    error
}

type watchModel struct {
	load     func(ctx context.Context) (*entity.Job, error)
	pushes   <-chan *redis.Message // nil without a push subscription
	interval time.Duration
	spinner  spinner.Model

	job   *entity.Job
	push  *notify.UploadStatus
	err   error
	done  bool
	width int
}

func newWatchModel(load func(ctx context.Context) (*entity.Job, error), pushes <-chan *redis.Message, interval time.Duration) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = activeStyle
	return watchModel{load: load, pushes: pushes, interval: interval, spinner: sp}
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	jobFlag := fs.String("job", "", "job id to follow")
	owner := fs.String("owner", "", "follow this owner's most recent job (id or email)")
	interval := fs.Duration("interval", time.Second, "store poll interval")
	noPush := fs.Bool("no-push", false, "do not subscribe to the owner's push channel")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	job, err := watchTarget(ctx, s, *jobFlag, *owner)
	if err != nil {
		return err
	}

	var pushes <-chan *redis.Message
	if !*noPush {
		if ch, closeSub, err := subscribe(ctx, s, job.OwnerID); err != nil {
			s.logger.Warn("push subscription unavailable, polling only", "error", err)
		} else {
			defer closeSub()
			pushes = ch
		}
	}

	jobID := job.ID
	load := func(ctx context.Context) (*entity.Job, error) { return s.jobs.GetByID(ctx, jobID) }
	p := tea.NewProgram(newWatchModel(load, pushes, *interval))
	final, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("watch requires an interactive terminal (TTY)")
		}
		return err
	}
	if m, ok := final.(watchModel); ok {
		return m.err
	}
	return nil
}

func watchTarget(ctx context.Context, s *session, jobRef, ownerRef string) (*entity.Job, error) {
	if jobRef != "" {
		id, err := uuid.Parse(jobRef)
		if err != nil {
			return nil, fmt.Errorf("invalid --job: %w", err)
		}
		return s.jobs.GetByID(ctx, id)
	}
	if ownerRef == "" {
		return nil, errors.New("--job or --owner is required")
	}
	u, err := s.resolveOwner(ctx, ownerRef)
	if err != nil {
		return nil, err
	}
	jobs, _, err := s.jobs.List(ctx, repository.JobFilter{OwnerID: u.ID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%s has no jobs", u.Email)
	}
	return jobs[0], nil
}

func subscribe(ctx context.Context, s *session, ownerID uuid.UUID) (<-chan *redis.Message, func(), error) {
	opts, err := redis.ParseURL(s.cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opts)
	channel := notify.NewRedisPublisher(rdb, s.cfg.Redis.ChannelPrefix, s.logger).Channel(ownerID.String())
	sub := rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		_ = rdb.Close()
		return nil, nil, err
	}
	return sub.Channel(), func() {
		_ = sub.Close()
		_ = rdb.Close()
	}, nil
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd(), waitForPush(m.pushes))
}

func (m watchModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		job, err := m.load(ctx)
		return jobLoadedMsg{job: job, err: err}
	}
}

func waitForPush(ch <-chan *redis.Message) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		var env notify.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			return pushMsg{err: fmt.Errorf("decode push: %w", err)}
		}
		if env.Event != notify.EventUploadStatus {
			return pushMsg{}
		}
		var st notify.UploadStatus
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			return pushMsg{err: fmt.Errorf("decode %s: %w", env.Event, err)}
		}
		return pushMsg{status: &st}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case jobLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.job = msg.job
		if m.job.Status.IsTerminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })
	case pollMsg:
		return m, m.loadCmd()
	case pushMsg:
		if msg.status != nil && m.job != nil && msg.status.UploadID == m.job.ID.String() {
			m.push = msg.status
			// the event follows the commit, so the stored row is final
			return m, tea.Batch(m.loadCmd(), waitForPush(m.pushes))
		}
		return m, waitForPush(m.pushes)
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("ordersctl watch"))
	b.WriteString("\n")
	if m.job == nil {
		if m.err != nil {
			b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
		} else {
			b.WriteString(m.spinner.View() + " loading job...\n")
		}
		return b.String()
	}

	var body strings.Builder
	fmt.Fprintf(&body, "job    %s\n", m.job.ID)
	fmt.Fprintf(&body, "file   %s\n", m.job.FileName())
	status := statusStyle(m.job.Status).Render(string(m.job.Status))
	if m.done {
		fmt.Fprintf(&body, "status %s\n", status)
	} else {
		fmt.Fprintf(&body, "status %s %s\n", m.spinner.View(), status)
	}
	if m.job.Metrics != nil {
		fmt.Fprintf(&body, "revenue %.2f | items %.0f | avg order %.2f\n",
			m.job.Metrics.TotalRevenue, m.job.Metrics.TotalItems, m.job.Metrics.AverageOrderValue)
	}
	if m.job.ErrorDetail != nil {
		body.WriteString(errorStyle.Render("error: "+*m.job.ErrorDetail) + "\n")
	}
	if m.push != nil {
		sent := "no"
		if m.push.EmailSent {
			sent = "yes"
		}
		fmt.Fprintf(&body, "push   received (email sent: %s)\n", sent)
	}
	b.WriteString(watchPanelStyle.Render(strings.TrimRight(body.String(), "\n")))
	b.WriteString("\n")
	if !m.done {
		b.WriteString(mutedStyle.Render("q to quit") + "\n")
	}
	return b.String()
}
