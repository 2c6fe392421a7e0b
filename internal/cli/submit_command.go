package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/intake"
	"github.com/joseph-ayodele/orders-tracker/internal/storage"
)

type submitResult struct {
	Path  string `json:"path"`
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}

func runSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	owner := fs.String("owner", "", "owner id or email")
	dir := fs.String("dir", "", "submit every workbook under this directory")
	watch := fs.String("watch", "", "watch this drop folder and submit workbooks as they arrive")
	skipHidden := fs.Bool("skip-hidden", true, "skip dot files and directories with --dir")
	remove := fs.Bool("remove", false, "with --watch, delete a dropped file once it is queued")
	jsonOut := fs.Bool("json", false, "print JSON output")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 && *dir == "" && *watch == "" {
		return errors.New("usage: ordersctl submit --owner <id|email> [--dir <path> | --watch <path> | file...]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, *verbose)
	if err != nil {
		return err
	}
	defer s.Close()

	u, err := s.resolveOwner(ctx, *owner)
	if err != nil {
		return err
	}
	stores, err := storage.Setup(ctx, s.cfg.Storage, s.cfg.Worker.UploadDir, s.logger)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()
	svc := intake.NewService(s.jobs, s.users, stores.Sink, s.cfg.Worker.MaxUploadBytes, s.logger)

	if *watch != "" {
		fmt.Fprintf(os.Stderr, "watching %s for %s (ctrl+c to stop)\n", *watch, u.Email)
		return svc.Watch(ctx, intake.WatchConfig{
			Root:            *watch,
			OwnerID:         u.ID,
			InitialScan:     true,
			RemoveSubmitted: *remove,
		})
	}

	var results []submitResult
	failed := 0
	for _, f := range files {
		job, err := svc.Submit(ctx, u.ID, f)
		results = append(results, newSubmitResult(f, job, err))
		if err != nil {
			failed++
		}
	}
	if *dir != "" {
		dirResults, _, err := svc.SubmitDirectory(ctx, u.ID, *dir, *skipHidden)
		if err != nil {
			return err
		}
		for _, r := range dirResults {
			res := submitResult{Path: r.Path, Error: r.Err}
			if r.Err == "" {
				res.JobID = r.JobID.String()
			} else {
				failed++
			}
			results = append(results, res)
		}
	}

	if *jsonOut {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(stdout, "rejected %s: %s\n", r.Path, r.Error)
				continue
			}
			fmt.Fprintf(stdout, "queued %s %s\n", r.JobID, r.Path)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) were not queued", failed, len(results))
	}
	return nil
}

func newSubmitResult(path string, job *entity.Job, err error) submitResult {
	if err != nil {
		return submitResult{Path: path, Error: err.Error()}
	}
	return submitResult{Path: path, JobID: job.ID.String()}
}
