package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/orders-tracker/internal/repository"
)

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var res doctorResult
	add := func(name string, err error, okMsg string) {
		c := doctorCheck{Name: name, OK: err == nil, Message: okMsg}
		if err != nil {
			c.Message = err.Error()
		}
		res.Checks = append(res.Checks, c)
	}

	s, err := openSession(ctx, false)
	if err != nil {
		add("store", err, "")
	} else {
		defer s.Close()
		err := repository.HealthCheck(ctx, s.db, 3*time.Second, s.logger)
		if err == nil {
			_, _, err = s.jobs.List(ctx, repository.JobFilter{Limit: 1})
		}
		add("store", err, s.cfg.Database.Driver+" reachable, schema present")
		add("redis", pingRedis(ctx, s.cfg.Redis.URL), "reachable")
		bin, err := lookParser(s.cfg.Worker.ParserBin)
		add("parser", err, bin)
		add("upload-dir", writableDir(s.cfg.Worker.UploadDir), s.cfg.Worker.UploadDir)
	}

	res.OK = true
	for _, c := range res.Checks {
		res.OK = res.OK && c.OK
	}

	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			mark := completedStyle.Render("ok  ")
			if !c.OK {
				mark = errorStyle.Render("FAIL")
			}
			fmt.Fprintf(stdout, "%s %-10s %s\n", mark, c.Name, c.Message)
		}
	}
	if !res.OK {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func pingRedis(ctx context.Context, url string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(opts)
	defer func() { _ = rdb.Close() }()
	return rdb.Ping(ctx).Err()
}

func lookParser(bin string) (string, error) {
	if filepath.IsAbs(bin) {
		info, err := os.Stat(bin)
		if err != nil {
			return "", err
		}
		if info.Mode()&0o111 == 0 {
			return "", fmt.Errorf("%s is not executable", bin)
		}
		return bin, nil
	}
	return exec.LookPath(bin)
}

func writableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
