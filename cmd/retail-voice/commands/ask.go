package commands

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-retail-voice/internal/log"
	"github.com/teslashibe/go-retail-voice/pkg/pipeline"
	"github.com/teslashibe/go-retail-voice/pkg/session"
)

var (
	askSession  string
	askAudioOut string
)

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Run one text turn and print the result as JSON",
	Example: `  retail-voice ask "is product 15970 in stock?"
  retail-voice ask --session demo "show me red summer dresses under 50 dollars"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "Session id carrying the off-topic counter between runs")
	askCmd.Flags().StringVar(&askAudioOut, "audio-out", "", "Write the synthesized reply to this file")
}

// askResult is what ask prints.
type askResult struct {
	RequestID     string                 `json:"requestId"`
	Transcript    string                 `json:"transcribedText"`
	Intent        string                 `json:"intent"`
	Params        map[string]any         `json:"intentParams"`
	ToolName      string                 `json:"toolName,omitempty"`
	ResponseText  string                 `json:"responseText"`
	OffTopicCount int                    `json:"offTopicCount"`
	Cutoff        bool                   `json:"cutoff,omitempty"`
	AudioBytes    int                    `json:"audioBytes"`
	Failure       *pipeline.Failure      `json:"failure,omitempty"`
	Stages        []pipeline.StageTiming `json:"stages"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	// Logs go to stderr so stdout stays parseable.
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	logger := log.L()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close(context.Background())

	st, err := ask(ctx, svc.orchestrator, svc.sessions, askSession, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if askAudioOut != "" && len(st.ResponseAudio) > 0 {
		if err := os.WriteFile(askAudioOut, st.ResponseAudio, 0o644); err != nil {
			return err
		}
	}
	return printResult(cmd.OutOrStdout(), st)
}

// ask runs text through r, threading the counter through store when a
// session id is given.
func ask(ctx context.Context, r interface {
	Run(context.Context, pipeline.Input) *pipeline.State
}, store session.Store, sessionID, text string) (*pipeline.State, error) {
	in := pipeline.Input{Text: text}
	if store != nil && sessionID != "" {
		n, err := store.Load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		in.OffTopicCount = n
	}

	st := r.Run(ctx, in)

	if store != nil && sessionID != "" {
		n, err := store.Add(ctx, sessionID, st.OffTopicCount-in.OffTopicCount)
		if err != nil {
			return st, err
		}
		st.OffTopicCount = n
	}
	return st, nil
}

func printResult(w io.Writer, st *pipeline.State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(askResult{
		RequestID:     st.RequestID,
		Transcript:    st.Transcript,
		Intent:        st.Intent.String(),
		Params:        st.Params,
		ToolName:      st.ToolName,
		ResponseText:  st.ResponseText,
		OffTopicCount: st.OffTopicCount,
		Cutoff:        st.Cutoff,
		AudioBytes:    len(st.ResponseAudio),
		Failure:       st.Failure,
		Stages:        st.Stages,
	})
}
