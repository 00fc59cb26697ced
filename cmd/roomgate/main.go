// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command roomgate drives one meeting admission attempt against a room
// service from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/roomgate/internal/admission"
	"github.com/ManuGH/roomgate/internal/config"
	"github.com/ManuGH/roomgate/internal/consent"
	"github.com/ManuGH/roomgate/internal/log"
	"github.com/ManuGH/roomgate/internal/roomapi"
)

var version = "v0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: roomgate <join|start> [flags]

Flags:
  --room ID            room to enter (required)
  --base URL           room service base URL (required unless configured)
  --config PATH        YAML config file
  --access-code CODE   access code for code-protected rooms
  --invite-token TOK   personal join token from an invite link
  --session TOK        member session token
  --name NAME          display name for guest admission
  --yes                grant every required consent without prompting
  --timeout DUR        overall attempt timeout (default 30s)
  --version            print version and exit
`)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	verb := args[0]
	if verb == "--version" || verb == "-version" {
		fmt.Printf("roomgate %s\n", version)
		return 0
	}
	if verb != "join" && verb != "start" {
		fmt.Fprintf(os.Stderr, "roomgate: unknown command %q\n", verb)
		usage()
		return 2
	}

	fs := flag.NewFlagSet(verb, flag.ContinueOnError)
	fs.Usage = usage
	var (
		roomID      = fs.String("room", "", "room ID")
		baseURL     = fs.String("base", "", "service base URL")
		configPath  = fs.String("config", "", "config file")
		accessCode  = fs.String("access-code", "", "access code")
		inviteToken = fs.String("invite-token", "", "personal join token")
		session     = fs.String("session", "", "member session token")
		name        = fs.String("name", "", "display name")
		yes         = fs.Bool("yes", false, "grant all required consents")
		timeout     = fs.Duration("timeout", 30*time.Second, "attempt timeout")
	)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomgate: %v\n", err)
		return 1
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Output:  os.Stderr,
		Service: "roomgate",
	})

	base := *baseURL
	if base == "" {
		base = cfg.Client.BaseURL
	}
	if base == "" || *roomID == "" {
		fmt.Fprintln(os.Stderr, "roomgate: --room and --base are required")
		return 2
	}
	if *accessCode != "" && *inviteToken != "" {
		fmt.Fprintln(os.Stderr, "roomgate: --access-code and --invite-token are mutually exclusive")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	httpTimeout, err := cfg.ClientTimeout()
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomgate: %v\n", err)
		return 1
	}
	clientOpts := []roomapi.Option{
		roomapi.WithHTTPClient(&http.Client{Timeout: httpTimeout}),
		roomapi.WithRateLimit(cfg.Client.RateLimit, cfg.Client.RateBurst),
	}
	if *session != "" {
		clientOpts = append(clientOpts, roomapi.WithSession(*session))
	}
	if cfg.Client.Tracing != nil && *cfg.Client.Tracing {
		clientOpts = append(clientOpts, roomapi.WithTracing())
	}
	client := roomapi.New(base, clientOpts...)

	cred := roomapi.NoCredential()
	switch {
	case *accessCode != "":
		cred = roomapi.AccessCode(*accessCode)
	case *inviteToken != "":
		cred = roomapi.PersonalToken(*inviteToken)
	}

	room, err := client.RoomDetail(ctx, *roomID, cred)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomgate: room lookup: %v\n", err)
		return 1
	}
	fmt.Printf("Room: %s (%s), meeting %s\n", room.Name, room.ID, room.MeetingStatus)

	logger := log.Derive(func(zc *zerolog.Context) {
		*zc = zc.Str(log.FieldComponent, "cli").Str(log.FieldBaseURL, base)
	})

	var redirectURL string
	ctrlOpts := []admission.Option{
		admission.WithLogger(logger),
		admission.WithNavigator(func(url string) { redirectURL = url }),
	}
	switch {
	case *accessCode != "":
		ctrlOpts = append(ctrlOpts, admission.WithAccessCode(*accessCode))
	case *inviteToken != "":
		ctrlOpts = append(ctrlOpts, admission.WithPersonalToken(*inviteToken))
	}
	ctrl := admission.New(client, room, ctrlOpts...)

	trigger := ctrl.RequestJoin
	if verb == "start" {
		trigger = ctrl.RequestStart
	}
	if err := trigger(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "roomgate: %v\n", err)
		return 1
	}

	if ctrl.State() == admission.StateAwaitingConsent {
		if err := fillForm(ctrl.Form(), *name, *yes); err != nil {
			fmt.Fprintf(os.Stderr, "roomgate: %v\n", err)
			return 1
		}
		if err := ctrl.Confirm(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "roomgate: %v\n", err)
			return 1
		}
	}

	// The controller may loop back to the form once (consent conflict) or
	// rewrite the action (meeting already running); a second confirmation
	// round covers both.
	if ctrl.State() == admission.StateAwaitingConsent {
		if err := fillForm(ctrl.Form(), *name, *yes); err != nil {
			fmt.Fprintf(os.Stderr, "roomgate: %v\n", err)
			return 1
		}
		if err := ctrl.Confirm(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "roomgate: %v\n", err)
			return 1
		}
	}

	switch ctrl.State() {
	case admission.StateRedirecting:
		fmt.Printf("Admitted. Meeting URL:\n%s\n", redirectURL)
		return 0
	case admission.StateBlocked:
		if n := ctrl.Notice(); n != nil {
			fmt.Fprintf(os.Stderr, "roomgate: blocked: %s\n", n.Message)
		} else {
			fmt.Fprintf(os.Stderr, "roomgate: blocked (%s)\n", ctrl.BlockedReason())
		}
		return 1
	default:
		if n := ctrl.Notice(); n != nil {
			fmt.Fprintf(os.Stderr, "roomgate: %s\n", n.Message)
		}
		fmt.Fprintf(os.Stderr, "roomgate: attempt ended in state %s\n", ctrl.State())
		return 1
	}
}

// fillForm populates the consent form from flags. Without --yes the
// required fields are printed instead, so the caller knows which flags
// to pass; consent is never granted implicitly.
func fillForm(form *consent.Form, name string, grantAll bool) error {
	req := form.Requirements()

	if req.DisplayName {
		if name == "" {
			return errors.New("this room requires a display name; pass --name")
		}
		form.SetDisplayName(name)
	}

	if !grantAll {
		if req.ConsentRecordAttendance || req.ConsentRecord || req.ConsentStreaming {
			fmt.Println("This meeting requires consent to:")
			if req.ConsentRecordAttendance {
				fmt.Println("  - attendance recording")
			}
			if req.ConsentRecord {
				fmt.Println("  - recording (audio, and video once granted)")
			}
			if req.ConsentStreaming {
				fmt.Println("  - live streaming")
			}
			return errors.New("re-run with --yes to grant the required consents")
		}
		return nil
	}

	if req.ConsentRecordAttendance {
		form.SetConsentRecordAttendance(true)
	}
	if req.ConsentRecord {
		form.SetConsentRecord(true)
		// Granting recording makes video consent required as well.
		form.SetConsentRecordVideo(true)
	}
	if req.ConsentStreaming {
		form.SetConsentStreaming(true)
	}
	return nil
}
