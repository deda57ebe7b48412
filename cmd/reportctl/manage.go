package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"reportd/internal/task"
	"reportd/internal/taskstore"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:     "delete <task-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		var ask func(string) (bool, error)
		if !deleteYes {
			if err := requireTTY(); err != nil {
				return errors.New("refusing to delete without confirmation; pass --yes")
			}
			ask = confirm
		}
		return deleteTask(st, args[0], ask)
	},
}

// deleteTask removes the task matching id. A nil ask deletes without
// asking; declining returns huh.ErrUserAborted.
func deleteTask(st *taskstore.Store, id string, ask func(string) (bool, error)) error {
	t, err := findTask(st, id)
	if err != nil {
		return err
	}
	if ask != nil {
		ok, err := ask(fmt.Sprintf("Delete task %q (%s)?", t.Name, t.ID))
		if err != nil {
			return err
		}
		if !ok {
			return huh.ErrUserAborted
		}
	}
	removed, err := st.Delete(t.ID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("task %s: %w", t.ID, task.ErrNotFound)
	}
	fmt.Println(okStyle.Render("Deleted"), t.Name, dimStyle.Render(t.ID))
	return nil
}

var enableCmd = &cobra.Command{
	Use:   "enable <task-id>",
	Short: "Activate a task",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(args[0], true) },
}

var disableCmd = &cobra.Command{
	Use:   "disable <task-id>",
	Short: "Deactivate a task; it stays in the store",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(args[0], false) },
}

func setActive(id string, active bool) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	t, err := findTask(st, id)
	if err != nil {
		return err
	}
	if err := st.SetActive(t.ID, active); err != nil {
		return err
	}
	state := "Disabled"
	if active {
		state = "Enabled"
	}
	fmt.Println(okStyle.Render(state), t.Name, dimStyle.Render(t.ID))
	return nil
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(deleteCmd, enableCmd, disableCmd)
}
