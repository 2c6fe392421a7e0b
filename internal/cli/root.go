// Package cli implements ordersctl, the operator tool for the order-report store.
package cli

import (
	"fmt"
	"io"
	"os"
)

var stdout io.Writer = os.Stdout

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "user":
		return runUser(args[1:])
	case "submit":
		return runSubmit(args[1:])
	case "jobs":
		return runJobs(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Fprintln(stdout, "ordersctl: manage owners and order-report jobs")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Commands:")
	fmt.Fprintln(stdout, "  user add   register an owner by email")
	fmt.Fprintln(stdout, "  user show  print an owner by --email or --id")
	fmt.Fprintln(stdout, "  submit     queue workbook(s) for an owner (files, --dir, or --watch)")
	fmt.Fprintln(stdout, "  jobs       list jobs with filters and paging (--export writes .xlsx)")
	fmt.Fprintln(stdout, "  watch      follow one job until it settles")
	fmt.Fprintln(stdout, "  doctor     check store, redis, parser binary and upload dir")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Notes:")
	fmt.Fprintln(stdout, "  - The store is read from DB_DRIVER and DB_URL (a .env file is honored)")
	fmt.Fprintln(stdout, "  - Use --json on user/submit/jobs for machine-readable output")
}
