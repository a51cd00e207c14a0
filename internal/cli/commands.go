package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-todo/pkg/schema"
)

const defaultLimit = 50

// NewRootCommand builds the todoctl command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "todoctl",
		Short:         "Command-line client for the TODO API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&app.Quiet, "quiet", "q", false, "suppress confirmations")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		healthCmd(app),
		authCmd(app, "login", "Log in with an existing account", false),
		authCmd(app, "signup", "Create an account and log in", true),
		logoutCmd(app),
		listCmd(app),
		addCmd(app),
		completeCmd(app, "done", "Mark a task completed", true),
		completeCmd(app, "undo", "Mark a task not completed", false),
		editCmd(app),
		rmCmd(app),
	)
	return root
}

func healthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API is reachable",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := app.Client.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "%s: %s (version %s)\n", h.Status, h.Message, h.Version)
			return nil
		},
	}
}

func authCmd(app *App, name, short string, create bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <email>",
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			login := app.Client.Login
			if create {
				login = app.Client.CreateUser
			}
			resp, err := login(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := app.Creds.Save(resp.Token); err != nil {
				return err
			}
			app.done("logged in as %s", resp.User.Email)
			return nil
		},
	}
}

func logoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		Args:  exactArgs(0),
		RunE: func(*cobra.Command, []string) error {
			if err := app.Creds.Clear(); err != nil {
				return err
			}
			app.Client.SetToken("")
			app.done("logged out")
			return nil
		},
	}
}

func listCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your tasks, newest first",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := app.Client.ListTasks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			FormatTasks(app.Out, list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "maximum tasks to show, 0 for all")
	return cmd
}

func addCmd(app *App) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := app.Client.CreateTask(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			app.done("created %s", task.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	return cmd
}

func completeCmd(app *App, name, short string, completed bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.Client.UpdateTask(cmd.Context(), args[0], schema.TaskPatch{Completed: &completed})
			if err != nil {
				return err
			}
			app.done("ok")
			return nil
		},
	}
}

func editCmd(app *App) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's title or description",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch schema.TaskPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if patch.Empty() {
				return usageError{errors.New("nothing to change, pass --title or --description")}
			}
			task, err := app.Client.UpdateTask(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			if !app.Quiet {
				FormatTasks(app.Out, []schema.Task{task})
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	return cmd
}

func rmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Client.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			app.done("deleted %s", args[0])
			return nil
		},
	}
}
