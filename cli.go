package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voiceai/config"
	"voiceai/doctor"
	"voiceai/gateway"
)

var errChecksFailed = errors.New("some checks failed")

type rootFlags struct {
	panel       string
	addr        string
	noOpen      bool
	noTray      bool
	noHotkey    bool
	longPress   time.Duration
	logPath     string
	configPath  string
	fakeGateway bool
	fakeCapture bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "voiceai",
		Short: "Record your voice, transcribe it and ask ChatGPT",
		Long: "Voice AI records from the default Windows microphone, transcribes the\n" +
			"recording with OpenAI and can forward the text to ChatGPT.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	cmd.Version = version
	cmd.SetVersionTemplate("voiceai {{.Version}}\n")

	cmd.Flags().StringVar(&f.panel, "panel", "web", "Panel to show: web or tui")
	cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:0", "Listen address for the web panel")
	cmd.Flags().BoolVar(&f.noOpen, "no-open", false, "Do not open the web panel in a browser")
	cmd.Flags().BoolVar(&f.noTray, "no-tray", false, "Do not show the notification-area icon")
	cmd.Flags().BoolVar(&f.noHotkey, "no-hotkey", false, "Do not register the global shortcut")
	cmd.Flags().DurationVar(&f.longPress, "longpress", 350*time.Millisecond, "Hold threshold for push-to-talk vs tap")
	cmd.Flags().BoolVar(&f.fakeGateway, "fake-gateway", false, "Answer with canned text instead of calling OpenAI")
	cmd.Flags().BoolVar(&f.fakeCapture, "fake-capture", false, "Use a simulated recorder (POSIX shell)")
	cmd.PersistentFlags().StringVar(&f.logPath, "logpath", "", "Log directory (default: OS-specific location, use ./ for current dir)")
	cmd.PersistentFlags().StringVar(&f.configPath, "config", "", "Settings file (default: $VOICEAI_CONFIG or user config dir)")

	cmd.AddCommand(newDoctorCmd(f), newVersionCmd())
	return cmd
}

func newDoctorCmd(f *rootFlags) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"test-settings"},
		Short:   "Show the active settings and check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := settingsPath(f.configPath)
			if err != nil {
				return err
			}
			s, err := config.Load(path)
			if err != nil {
				return err
			}
			checks := doctor.Checks(doctor.Options{
				Settings: s,
				Path:     path,
				Gateway:  gateway.NewOpenAI(s.BaseURL),
				Live:     live,
			})
			if doctor.Run(cmd.Context(), cmd.OutOrStdout(), checks) != 0 {
				return errChecksFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Send a one-word ChatGPT request to verify the key")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voiceai %s\n", version)
		},
	}
}
