package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/TERAMED-SA/provision-chat/internal/app"
	"github.com/TERAMED-SA/provision-chat/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	userFlag := flag.String("user", os.Getenv("PROVISION_USER_ID"), "local employee id")
	companyFlag := flag.String("company", os.Getenv("PROVISION_COMPANY_ID"), "local client code (own-company peers are hidden)")
	verboseFlag := flag.Bool("verbose", false, "also log to stderr (redirect 2> to keep the TUI clean)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *userFlag == "" {
		fmt.Fprintln(os.Stderr, "error: --user (or PROVISION_USER_ID) is required")
		os.Exit(1)
	}

	a := fx.New(
		app.Module(app.Params{
			SessionName: sessionName,
			UserID:      *userFlag,
			CompanyID:   *companyFlag,
			Verbose:     *verboseFlag,
		}),
		// The TUI owns the terminal; fx's own log lines would corrupt it.
		fx.NopLogger,
	)

	a.Run()
}
