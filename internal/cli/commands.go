package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/payment-service/internal/http/admin"
	"github.com/magabrotheeeer/payment-service/internal/migrations"
	"github.com/magabrotheeeer/payment-service/internal/rabbitmq"
	"github.com/magabrotheeeer/payment-service/internal/services/auth"
	schedulerservice "github.com/magabrotheeeer/payment-service/internal/services/scheduler"
	"github.com/magabrotheeeer/payment-service/internal/services/setup"
	"github.com/magabrotheeeer/payment-service/internal/tasks"
)

// PasswordEnv переменная с паролем для createsuperuser без --password.
const PasswordEnv = "INIT_MAIN_USER_PASSWORD"

// DefaultStaticDir каталог collectstatic по умолчанию.
const DefaultStaticDir = "./static"

func newMigrateCmd(env *Env) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := env.OpenStorage(cmd.Context())
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer db.Close()

			if err := migrations.Run(db.DB, path); err != nil {
				return err
			}
			version, dirty, err := migrations.Version(db.DB, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied, version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", env.Config.MigrationsPath, "directory with migration files")
	return cmd
}

func newCreateSuperuserCmd(env *Env) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create a superuser for the admin and the staff API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password = resolvePassword(password)
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				return fmt.Errorf("--password is required (or set %s)", PasswordEnv)
			}

			db, err := env.OpenStorage(cmd.Context())
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer db.Close()

			id, err := auth.NewAuthService(db, nil).CreateSuperuser(cmd.Context(), email, password)
			if err != nil {
				if errors.Is(err, auth.ErrUserExists) {
					return fmt.Errorf("user %s already exists", email)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "superuser %s created with id %d\n", strings.ToLower(strings.TrimSpace(email)), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "superuser email")
	cmd.Flags().StringVar(&password, "password", "", "superuser password, defaults to $"+PasswordEnv)
	return cmd
}

func resolvePassword(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(PasswordEnv)
}

func newInitDataCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "initdata",
		Short: "Create the default client and the main superuser if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := env.OpenStorage(cmd.Context())
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer db.Close()

			res, err := setup.New(env.Log, db, auth.NewAuthService(db, nil), env.Config.Init).Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Client == nil && res.UserEmail == "" {
				fmt.Fprintln(out, "nothing to initialize")
				return nil
			}
			if res.Client != nil {
				fmt.Fprintf(out, "client created: client_id=%s client_secret=%s sku_prefix=%s\n",
					res.Client.ClientID, res.ClientSecret, res.Client.SKUPrefix)
			}
			if res.UserEmail != "" {
				fmt.Fprintf(out, "superuser created: %s\n", res.UserEmail)
			}
			return nil
		},
	}
}

func newCollectStaticCmd(_ *Env) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "collectstatic",
		Short: "Copy admin static files into the static root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := admin.CollectStatic(dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d static files copied to %s\n", n, dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", DefaultStaticDir, "static root directory")
	return cmd
}

func newEnqueueCmd(env *Env) *cobra.Command {
	var rawArgs, queue string
	cmd := &cobra.Command{
		Use:   "enqueue <task>",
		Short: "Publish a task to the broker",
		Long:  "Publish a task to the broker. Known tasks: " + strings.Join(tasks.Catalog(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !tasks.Known(name) {
				return fmt.Errorf("unknown task %q, known: %s", name, strings.Join(tasks.Catalog(), ", "))
			}
			var payload json.RawMessage
			if rawArgs != "" {
				if !json.Valid([]byte(rawArgs)) {
					return errors.New("--args must be valid JSON")
				}
				payload = json.RawMessage(rawArgs)
			}

			enq, closeFn, err := env.OpenEnqueuer(cmd.Context())
			if err != nil {
				return fmt.Errorf("connect broker: %w", err)
			}
			defer closeFn()

			task, err := enq.Enqueue(cmd.Context(), name, payload, tasks.EnqueueOptions{
				Queue:  queue,
				Origin: tasks.OriginManage,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s enqueued to %s with id %s\n", task.Name, task.Queue, task.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "", "task arguments as JSON")
	cmd.Flags().StringVar(&queue, "queue", "", "target queue, defaults to the first broker queue")
	return cmd
}

func newScheduleCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Print the effective periodic task schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topology := rabbitmq.NewTopology(env.Config.Broker.Exchange, env.Config.Broker.Queues)
			entries, err := schedulerservice.EntriesFromConfig(env.Config.Scheduler.Entries, topology)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSPEC\tTASK\tQUEUE\tARGS")
			for _, e := range entries {
				queue := e.Queue
				if queue == "" {
					queue = "-"
				}
				args := string(e.Args)
				if args == "" {
					args = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Spec, e.Task, queue, args)
			}
			return w.Flush()
		},
	}
}
