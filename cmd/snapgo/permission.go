package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SnapGo/internal/permission"
)

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Inspect or reset persisted permission answers",
}

var permissionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted permission answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := permission.NewStore(cfg.Permission.StorePath)
		grants, err := store.All()
		if err != nil {
			return err
		}
		if _, ok := grants[permission.Camera]; !ok {
			grants[permission.Camera] = permission.Unknown
		}

		names := make([]string, 0, len(grants))
		for name := range grants {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, grants[name])
		}
		return nil
	},
}

var permissionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every persisted answer so the next run prompts again",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := permission.NewStore(cfg.Permission.StorePath)
		if err := store.Reset(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Permissions reset (%s)\n", store.Path())
		return nil
	},
}

func init() {
	permissionCmd.AddCommand(permissionStatusCmd, permissionResetCmd)
}
