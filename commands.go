package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjacquet/cpmgmt/internal/config"
	"github.com/fjacquet/cpmgmt/internal/mgmt"
	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/playbook"
	"github.com/fjacquet/cpmgmt/internal/utils"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// PasswordEnv is read when the configuration holds no password.
const PasswordEnv = "CPMGMT_PASSWORD"

var errNoPassword = errors.New("no password configured: set session.password, " + PasswordEnv + " or run from a terminal")

// resolvePassword returns the configured password, then the environment
// variable, then prompts on the terminal.
func resolvePassword(cfg models.Config) (string, error) {
	if cfg.Session.Password != "" {
		return cfg.Session.Password, nil
	}
	if p := os.Getenv(PasswordEnv); p != "" {
		return p, nil
	}

	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return "", errNoPassword
	}

	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", cfg.Session.User, cfg.MgmtServer.Host)
	bytePassword, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(bytePassword), nil
}

// parsePayload decodes a JSON object argument. Numbers are kept verbatim.
func parsePayload(s string) (models.Payload, error) {
	if s == "" {
		return models.Payload{}, nil
	}

	var payload models.Payload
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if payload == nil {
		return nil, errors.New("invalid JSON payload: expected an object")
	}
	return payload, nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := utils.MarshalIndent(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <command> [json-payload]",
		Short: "Run one management API command",
		Long: "Log in, run the command (waiting for its task when it starts one), print the response and log out.\n" +
			"A non-success response makes cpmgmt exit with an error.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 2 {
				raw = args[1]
			}
			payload, err := parsePayload(raw)
			if err != nil {
				return err
			}

			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.shutdown()
			defer a.writeTextfile()

			return a.withSession(cmd.Context(), a.cfg, func(ctx context.Context, client *mgmt.Client) error {
				res, err := client.CallAndCheck(ctx, args[0], payload)
				if res != nil {
					if perr := printJSON(cmd.OutOrStdout(), res.Data); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func newQueryCmd() *cobra.Command {
	var (
		detailsLevel string
		rawPayload   string
		output       string
	)

	cmd := &cobra.Command{
		Use:   "query <command>",
		Short: "List every object returned by a paginated show command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(rawPayload)
			if err != nil {
				return err
			}
			if _, ok := payload["details-level"]; !ok || cmd.Flags().Changed("details-level") {
				payload["details-level"] = detailsLevel
			}

			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.shutdown()
			defer a.writeTextfile()

			return a.withSession(cmd.Context(), a.cfg, func(ctx context.Context, client *mgmt.Client) error {
				res, err := client.QueryPayload(ctx, args[0], payload)
				if err != nil {
					return err
				}
				if output != "" {
					if err := res.SaveObjects(output); err != nil {
						return err
					}
					log.Infof("Saved %d objects to %s", len(res.Objects), output)
					return nil
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), res.String())
				return err
			})
		},
	}

	cmd.Flags().StringVar(&detailsLevel, "details-level", models.DetailsLevelStandard, "Details level: uid, standard or full")
	cmd.Flags().StringVar(&rawPayload, "payload", "", "Additional JSON payload, e.g. '{\"filter\":\"web\"}'")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Save the objects to this file instead of printing them")
	return cmd
}

func newApplyCmd() *cobra.Command {
	var (
		playbookFile string
		watch        bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a playbook of commands and queries within one session",
		Long: "Apply the playbook steps in order, publishing at the end when the playbook asks for it.\n" +
			"With --watch, the playbook is applied again whenever its file changes, the configuration is\n" +
			"reloaded on SIGHUP and metrics are served when server.port is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.shutdown()

			if watch {
				return a.applyWatch(cmd.Context(), playbookFile, cmd.OutOrStdout())
			}

			defer a.writeTextfile()
			return a.apply(cmd.Context(), a.cfg, playbookFile, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&playbookFile, "file", "f", "", "Path to the playbook file (required)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-apply the playbook when it changes")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// apply loads the playbook at path and runs it in a new session.
func (a *app) apply(ctx context.Context, cfg models.Config, path string, out io.Writer) error {
	pb, err := playbook.Load(path)
	if err != nil {
		return err
	}

	return a.withSession(ctx, cfg, func(ctx context.Context, client *mgmt.Client) error {
		runner := playbook.NewRunner(client, playbook.WithTracerProvider(a.tracerProvider))
		report, err := runner.Run(ctx, pb)
		printReport(out, report)
		return err
	})
}

func printReport(w io.Writer, report *playbook.Report) {
	if report == nil {
		return
	}
	for _, step := range report.Steps {
		status := "ok"
		if step.Response != nil && step.Response.IsNotSuccess() {
			status = fmt.Sprintf("failed (%d %s)", step.Response.StatusCode, step.Response.Message())
		}
		_, _ = fmt.Fprintf(w, "%-40s %s\n", step.Step, status)
	}
	switch {
	case report.Published:
		_, _ = fmt.Fprintln(w, "published")
	case report.Discarded:
		_, _ = fmt.Fprintln(w, "discarded")
	}
}

// applyWatch applies the playbook, then again on every change of its file,
// until SIGINT or SIGTERM. SIGHUP reloads the configuration used by the
// next run.
func (a *app) applyWatch(ctx context.Context, path string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	safeCfg := models.NewSafeConfig(&a.cfg)

	var server *Server
	if a.cfg.IsMetricsServerEnabled() {
		server = NewServer(a.cfg, a.registry, a.tracerProvider != nil)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			if err := server.Shutdown(); err != nil {
				log.Errorf("Server shutdown: %v", err)
			}
		}()
	}

	run := func(string) error {
		err := a.apply(ctx, *safeCfg.Get(), path, out)
		if server != nil {
			server.SetHealthy(err == nil)
		}
		a.writeTextfile()
		return err
	}

	if err := run(path); err != nil {
		log.Errorf("Playbook run failed: %v", err)
	}

	watcher, err := config.NewFileWatcher(config.DefaultDebounce)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Watch(path, run); err != nil {
		return err
	}

	config.SetupSIGHUPHandler(ctx, configFile, func(p string) error {
		_, err := safeCfg.ReloadConfig(p)
		return err
	})

	var serverErr <-chan error
	if server != nil {
		serverErr = server.ErrorChan()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, stopping...")
		return nil
	case err := <-serverErr:
		return err
	}
}
