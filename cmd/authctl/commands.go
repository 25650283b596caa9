package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"workforce-auth/internal/authclient"
	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/qr"
	"workforce-auth/internal/session"
	sessiondomain "workforce-auth/internal/session/domain"
)

func loginCommand() *command {
	var refreshes int
	return &command{
		name:    "login",
		summary: "Show a QR code and sign in once another device approves it",
		usage:   "authctl login [--refreshes n]",
		flags: func(fs *pflag.FlagSet) {
			fs.IntVar(&refreshes, "refreshes", 0, "how many times to show a new code after one expires")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			return login(ctx, e, authclient.New(e.BaseURL), refreshes)
		},
	}
}

// login drives the handshake until the code is approved, expires for the last time, or ctx ends.
func login(ctx context.Context, e *env, backend qr.Backend, refreshes int) error {
	renderer := qr.NewRenderer()
	approved := make(chan employeedomain.Snapshot, 1)
	expired := make(chan struct{}, 1)

	h := qr.NewHandshake(backend, qr.Hooks{
		OnTicket: func(t qr.Ticket) {
			art, err := renderer.Terminal(t.ReferenceURL)
			if err != nil {
				e.logger.Warn("authctl: render qr", zap.Error(err))
			} else {
				fmt.Fprint(e.stdout, art)
			}
			fmt.Fprintf(e.stdout, "Scan with a signed-in device, or run:\n  authctl approve %s\n", t.SessionID)
			if t.Degraded {
				fmt.Fprintln(e.stdout, "Note: the server could not share this code, so no other device can approve it. Try again later.")
			}
		},
		OnSuccess: func(s employeedomain.Snapshot) { approved <- s },
		OnExpired: func() { expired <- struct{}{} },
		OnError: func(err error) {
			e.logger.Debug("authctl: poll failed, retrying", zap.Error(err))
		},
	}, nil, e.logger)

	if _, err := h.Start(ctx); err != nil {
		return err
	}
	defer h.Stop()

	for {
		select {
		case s := <-approved:
			auth := session.Unify(s, sessiondomain.MethodQRCode, time.Now())
			if err := session.NewFilePersister(e.StateFile).Save(ctx, auth); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(e.stdout, "Signed in as %s %s (%s).\n", s.FirstName, s.LastName, s.Organization.Name)
			return nil
		case <-expired:
			if refreshes <= 0 {
				return errors.New("the code expired before it was approved")
			}
			refreshes--
			fmt.Fprintln(e.stdout, "The code expired. Here is a new one.")
			if _, err := h.Refresh(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func approveCommand() *command {
	var username, password string
	return &command{
		name:    "approve",
		summary: "Approve a QR session with a username and password",
		usage:   "authctl approve [--username u] [--password p] <session-id|reference-url>",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVarP(&username, "username", "u", "", "employee username")
			fs.StringVarP(&password, "password", "p", "", "password; read from stdin when empty")
		},
		run: func(ctx context.Context, e *env, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one session id or reference URL")
			}
			id, err := sessionID(args[0])
			if err != nil {
				return err
			}
			if username == "" || password == "" {
				in := bufio.NewReader(e.stdin)
				if username == "" {
					fmt.Fprint(e.stdout, "Username: ")
					username, _ = in.ReadString('\n')
				}
				if password == "" {
					fmt.Fprint(e.stdout, "Password: ")
					password, _ = in.ReadString('\n')
				}
			}
			employee, err := authclient.New(e.BaseURL).Approve(ctx, id,
				strings.TrimSpace(username), strings.TrimRight(password, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintf(e.stdout, "Approved for %s %s. The other device is now signed in.\n", employee.FirstName, employee.LastName)
			return nil
		},
	}
}

// sessionID accepts a bare session ID or the reference URL encoded in the QR image.
func sessionID(arg string) (string, error) {
	if !strings.Contains(arg, "://") {
		return arg, nil
	}
	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("parse reference URL: %w", err)
	}
	id := u.Query().Get("session")
	if id == "" {
		return "", errors.New("reference URL has no session parameter")
	}
	return id, nil
}

func whoamiCommand() *command {
	return &command{
		name:    "whoami",
		summary: "Print the signed-in employee",
		usage:   "authctl whoami",
		run: func(ctx context.Context, e *env, args []string) error {
			s, err := session.NewFilePersister(e.StateFile).Load(ctx)
			if err != nil {
				return err
			}
			if s == nil {
				return errors.New("not signed in")
			}
			emp := s.Employee
			fmt.Fprintf(e.stdout, "%s %s <%s>\n", emp.FirstName, emp.LastName, emp.Email)
			fmt.Fprintf(e.stdout, "organization: %s\nrole: %s\nsigned in: %s via %s\n",
				emp.Organization.Name, emp.Role, s.AuthenticatedAt.Local().Format(time.RFC1123), s.AuthMethod)
			return nil
		},
	}
}

func logoutCommand() *command {
	return &command{
		name:    "logout",
		summary: "Forget the signed-in session",
		usage:   "authctl logout",
		run: func(ctx context.Context, e *env, args []string) error {
			if err := session.NewFilePersister(e.StateFile).Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(e.stdout, "Signed out.")
			return nil
		},
	}
}
