package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/flow"
	"github.com/cjeanneret/SnapGo/internal/permission"
)

var errAccessDenied = errors.New("camera access denied")

var shootCmd = &cobra.Command{
	Use:   "shoot",
	Short: "Ask for camera access on the terminal, take one photo and print its reference",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctrl := a.controller(permission.NewTerminalPrompter())
		runCtx, stop := context.WithCancel(ctx)
		defer stop()
		go ctrl.Run(runCtx)

		ref, err := shootOnce(ctx, ctrl)
		if err != nil {
			return err
		}
		debug.Summary("Photo saved")
		fmt.Fprintln(cmd.OutOrStdout(), ref)
		return nil
	},
}

// shootOnce drives ctrl through permission, one capture, and back. ctrl.Run
// must be running.
func shootOnce(ctx context.Context, ctrl *flow.Controller) (string, error) {
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	ctrl.RequestPermission(ctx)
	for !ctrl.State().ShowCamera() {
		select {
		case u := <-updates:
			switch u.Signal {
			case flow.SignalDenied:
				return "", errAccessDenied
			case flow.SignalRationale:
				return "", fmt.Errorf("%w earlier; run `snapgo permission reset` to be asked again", errAccessDenied)
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	debug.Section("Capturing")
	if err := ctrl.Capture(ctx); err != nil {
		return "", err
	}
	for {
		select {
		case u := <-updates:
			if u.Signal == flow.SignalCaptureFailed {
				return "", fmt.Errorf("capture failed: %w", u.Cause)
			}
			if u.State.ShowPhoto() {
				return u.State.Photo, nil
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
