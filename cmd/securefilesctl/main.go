// Command securefilesctl runs maintenance tasks against the configured store
// and mail relay.
//
//	securefilesctl sweep [-days N]
//	securefilesctl test-email -to addr
//	securefilesctl magic-link -email addr [-print]
//	securefilesctl create-user -email addr [-name n] [-role operations|client]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"securefiles/server/internal/app"
	"securefiles/server/internal/config"
	"securefiles/server/internal/delivery"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"
)

const usage = "usage: securefilesctl <sweep|test-email|magic-link|create-user> [flags]"

var errUsage = errors.New(usage)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := run(ctx, a, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		a.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "sweep":
		return runSweep(ctx, a, rest, out)
	case "test-email":
		return runTestEmail(ctx, a, rest, out)
	case "magic-link":
		return runMagicLink(ctx, a, rest, out)
	case "create-user":
		return runCreateUser(ctx, a, rest, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func runSweep(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(out)
	days := fs.Int("days", a.Config.TokenRetentionDays, "remove tokens created more than this many days ago")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days < 1 {
		return errors.New("-days must be at least 1")
	}

	n, err := a.Logins.Sweep(ctx, time.Duration(*days)*24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ removed %d login tokens (expired or older than %d days)\n", n, *days)
	return nil
}

func runTestEmail(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("test-email", flag.ContinueOnError)
	fs.SetOutput(out)
	to := fs.String("to", "", "recipient address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := a.Config
	fmt.Fprintln(out, "email configuration:")
	if cfg.SMTPHost == "" {
		fmt.Fprintln(out, "  backend: log (SECUREFILES_SMTP_HOST not set)")
	} else {
		fmt.Fprintf(out, "  backend: smtp\n  host: %s\n  port: %d\n  starttls: %t\n  user: %s\n", cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPStartTLS, cfg.SMTPUser)
	}
	fmt.Fprintf(out, "  from: %s\n", cfg.SMTPFrom)

	if *to == "" {
		return nil
	}

	msg, err := delivery.TestEmailMessage(*to, delivery.TestEmailData{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		StartTLS: cfg.SMTPStartTLS,
	})
	if err != nil {
		return err
	}
	if err := a.Mailer.Deliver(ctx, msg); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ test email sent to %s\n", *to)
	return nil
}

func runMagicLink(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("magic-link", flag.ContinueOnError)
	fs.SetOutput(out)
	email := fs.String("email", "", "user address")
	printOnly := fs.Bool("print", false, "print the link instead of emailing it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	u, err := a.Store.GetUserByEmail(ctx, *email)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", *email, err)
	}
	if !u.CanLogin() {
		return fmt.Errorf("%s cannot log in (active=%t role=%s)", u.Email, u.Active, u.Role)
	}

	rc := model.RequestContext{IP: "127.0.0.1", UserAgent: "securefilesctl"}
	if *printOnly {
		link, t, err := a.Binder.IssueLink(ctx, *u, rc)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n(expires %s)\n", link, t.ExpiresAt.Format(time.RFC3339))
		return nil
	}

	if err := a.Binder.SendLink(ctx, *u, rc); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ magic link sent to %s (%s)\n", u.Email, u.Role)
	return nil
}

func runCreateUser(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(out)
	email := fs.String("email", "", "user address")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(model.RoleOperations), "operations or client")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u, err := a.Accounts.Register(ctx, *email, *name, model.Role(*role))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ created %s user %s (%s)\n", u.Role, u.Email, u.ID)
	return nil
}
