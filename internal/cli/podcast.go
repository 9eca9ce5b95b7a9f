package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/portal-go/internal/podcast"
	"github.com/raphaelgruber/portal-go/internal/server"
)

var (
	podcastSentences int
	podcastVoice     string
	podcastWatch     bool
	podcastBack      bool
	podcastOutput    string
)

var podcastCmd = &cobra.Command{
	Use:   "podcast",
	Short: "Generate and play narrated episodes",
	Long: `Open a narrated episode on a topic and control its playback.

Examples:
  portal podcast open "The history of index funds" --watch
  portal podcast play 3f9a1c2b7d4e5f60
  portal podcast seek 3f9a1c2b7d4e5f60 50%
  portal podcast extend 3f9a1c2b7d4e5f60 --sentences 4
  portal podcast audio 3f9a1c2b7d4e5f60 -o episode.wav`,
}

var podcastOpenCmd = &cobra.Command{
	Use:   "open [topic]",
	Short: "Open a new episode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := podcast.OpenRequest{Topic: firstArg(args), Voice: podcastVoice, Sentences: podcastSentences}
		view, err := apiClient.OpenSession(context.Background(), req)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		if podcastWatch {
			return RunPlayer(apiClient, view)
		}
		if jsonOut {
			return printJSON(view)
		}
		fmt.Fprintf(stdout, "Opened session %s on %q\n", view.ID, view.Topic)
		fmt.Fprintln(stdout, defaultTheme.hintStyle().Render("Follow with: portal podcast watch "+view.ID))
		return nil
	},
}

var podcastStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := apiClient.Session(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return showSession(view)
	},
}

var podcastWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Follow a session with captions and player controls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := apiClient.Session(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return RunPlayer(apiClient, view)
	},
}

var podcastCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.CloseSession(context.Background(), args[0]); err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		fmt.Fprintf(stdout, "Closed session %s\n", args[0])
		return nil
	},
}

var podcastAudioCmd = &cobra.Command{
	Use:   "audio <id>",
	Short: "Download a session's audio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, mime, err := apiClient.Audio(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("download audio: %w", err)
		}
		out := podcastOutput
		if out == "" {
			out = args[0] + extensionFor(mime)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		fmt.Fprintf(stdout, "Wrote %d bytes (%s) to %s\n", len(data), mime, out)
		return nil
	},
}

// actionCmd builds a subcommand that posts one playback action.
func actionCmd(use, short string, nargs int, build func(args []string) (server.ActionRequest, error)) *cobra.Command {
	action := strings.Fields(use)[0]
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := build(args)
			if err != nil {
				return err
			}
			view, err := apiClient.Action(context.Background(), args[0], action, req)
			if err != nil {
				return fmt.Errorf("%s: %w", action, err)
			}
			return showSession(view)
		},
	}
}

func noArgs([]string) (server.ActionRequest, error) { return server.ActionRequest{}, nil }

// parseSeek accepts seconds ("42.5") or a percentage of the duration ("50%").
func parseSeek(arg string) (server.ActionRequest, error) {
	if pct, ok := strings.CutSuffix(arg, "%"); ok {
		f, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return server.ActionRequest{}, fmt.Errorf("invalid percentage %q", arg)
		}
		f /= 100
		return server.ActionRequest{Fraction: &f}, nil
	}
	secs, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return server.ActionRequest{}, fmt.Errorf("invalid position %q", arg)
	}
	return server.ActionRequest{Seconds: &secs}, nil
}

func showSession(view *server.SessionView) error {
	if jsonOut {
		return printJSON(view)
	}
	printSession(view)
	return nil
}

func printSession(view *server.SessionView) {
	th := defaultTheme
	title := view.Title
	if title == "" {
		title = view.Topic
	}
	fmt.Fprintf(stdout, "%s %s\n", th.statusStyle().Render(fmt.Sprintf("[%s]", view.State)), th.headingStyle().Render(title))
	if view.DurationSeconds > 0 {
		fmt.Fprintf(stdout, "  %s / %s  rate %.2gx  volume %d\n",
			clock(view.PositionSeconds), clock(view.DurationSeconds), view.Rate, view.Volume)
	}
	if view.Caption != "" {
		fmt.Fprintf(stdout, "  %q\n", view.Caption)
	}
	if view.Extending {
		fmt.Fprintln(stdout, th.hintStyle().Render("  extending..."))
	}
	printPanel(view.Panel)
}

func extensionFor(mime string) string {
	switch {
	case strings.Contains(mime, "wav"):
		return ".wav"
	case strings.Contains(mime, "mpeg"):
		return ".mp3"
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	default:
		return ".bin"
	}
}

func init() {
	podcastOpenCmd.Flags().IntVar(&podcastSentences, "sentences", 0, "script length in sentences (default from server)")
	podcastOpenCmd.Flags().StringVar(&podcastVoice, "voice", "", "TTS voice")
	podcastOpenCmd.Flags().BoolVarP(&podcastWatch, "watch", "w", false, "follow the session in the player")

	podcastAudioCmd.Flags().StringVarP(&podcastOutput, "output", "o", "", "output file (default <id>.<ext>)")

	skipCmd := actionCmd("skip <id>", "Skip forward, or back with --back", 1, func([]string) (server.ActionRequest, error) {
		if podcastBack {
			return server.ActionRequest{Direction: "back"}, nil
		}
		return server.ActionRequest{Direction: "forward"}, nil
	})
	skipCmd.Flags().BoolVar(&podcastBack, "back", false, "skip backwards")

	extendCmd := actionCmd("extend <id>", "Append more sentences to the episode", 1, func([]string) (server.ActionRequest, error) {
		return server.ActionRequest{Sentences: podcastSentences}, nil
	})
	extendCmd.Flags().IntVar(&podcastSentences, "sentences", 0, "sentences to add (default from server)")

	podcastCmd.AddCommand(
		podcastOpenCmd,
		podcastStatusCmd,
		podcastWatchCmd,
		podcastCloseCmd,
		podcastAudioCmd,
		actionCmd("play <id>", "Start or resume playback", 1, noArgs),
		actionCmd("pause <id>", "Pause playback", 1, noArgs),
		actionCmd("toggle <id>", "Toggle play and pause", 1, noArgs),
		actionCmd("seek <id> <seconds|NN%>", "Seek to a position", 2, func(args []string) (server.ActionRequest, error) {
			return parseSeek(args[1])
		}),
		skipCmd,
		actionCmd("rate <id> <rate>", "Set playback rate (0.5 to 2)", 2, func(args []string) (server.ActionRequest, error) {
			r, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return server.ActionRequest{}, fmt.Errorf("invalid rate %q", args[1])
			}
			return server.ActionRequest{Rate: r}, nil
		}),
		actionCmd("volume <id> <0-100>", "Set volume", 2, func(args []string) (server.ActionRequest, error) {
			v, err := strconv.Atoi(args[1])
			if err != nil {
				return server.ActionRequest{}, fmt.Errorf("invalid volume %q", args[1])
			}
			return server.ActionRequest{Volume: &v}, nil
		}),
		extendCmd,
	)
}
