package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/media"
	"github.com/cjeanneret/SnapGo/internal/web"
)

var webPort = &webPortFlag{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the camera screen over HTTP until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		prompter, prompts := newPrompter(cfg.Permission.Prompt, broadcaster)
		ctrl := a.controller(prompter)
		go ctrl.Run(ctx)

		updates, unsubscribe := ctrl.Subscribe()
		defer unsubscribe()
		go broadcaster.Forward(ctx, updates)

		debug.Section("Requesting camera permission")
		ctrl.RequestPermission(ctx)

		port := webPort.port()
		if port == 0 {
			port = cfg.Defaults.WebPort
		}
		previewer, _ := a.camera.(camera.Previewer)
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), cfg.Defaults.AllowOrigins, web.Deps{
			Controller:      ctrl,
			Prompts:         prompts,
			Renderer:        media.NewRenderer(cfg.Display.MaxWidthPx, cfg.Display.MaxHeightPx),
			Previewer:       previewer,
			History:         a.catalog,
			Broadcaster:     broadcaster,
			PreviewInterval: cfg.PreviewInterval(),
		})
		if err != nil {
			return err
		}
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Var(webPort, "web", "web server port (default: defaults.web_port from config)")
}

// webPortFlag implements pflag.Value for --web: 0 means "use the config port".
type webPortFlag struct {
	val int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) Type() string { return "port" }

func (w *webPortFlag) port() int { return w.val }
