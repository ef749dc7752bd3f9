package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nightshift-games/checkpoint/internal/config"
	"github.com/nightshift-games/checkpoint/internal/investigate"
	"github.com/nightshift-games/checkpoint/internal/model"
	"github.com/nightshift-games/checkpoint/internal/session"
)

var (
	runScriptPath string
	runSessionID  string
	runResume     bool
)

// operatorScript is a deterministic replay of operator actions.
type operatorScript struct {
	SessionID string         `yaml:"session_id"`
	Actions   []scriptAction `yaml:"actions"`
}

type scriptAction struct {
	Action     string `yaml:"action"`
	Category   string `yaml:"category,omitempty"`
	DeltaMs    int64  `yaml:"delta_ms,omitempty"`
	Decision   string `yaml:"decision,omitempty"`
	QuestionID string `yaml:"question_id,omitempty"`
	Response   string `yaml:"response,omitempty"`
	BPM        int    `yaml:"bpm,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay an operator script against a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Validate(cfg, "run"); err != nil {
			return err
		}
		ctx := cmd.Context()

		script, err := loadScript(runScriptPath)
		if err != nil {
			return err
		}
		sessionID := runSessionID
		if sessionID == "" {
			sessionID = script.SessionID
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		cat, err := initCatalog()
		if err != nil {
			return err
		}

		ctrl, err := session.NewController(cat, st, session.Options{
			SessionID:               sessionID,
			ResetInfractionsOnShift: cfg.Balance.ResetInfractionsOnShift,
		})
		if err != nil {
			return err
		}
		if runResume {
			if err := ctrl.Restore(ctx); err != nil {
				return err
			}
		}

		for i, a := range script.Actions {
			if err := applyAction(ctx, ctrl, a); err != nil {
				return eris.Wrapf(err, "run: action %d (%s)", i, a.Action)
			}
			if ctrl.Done() {
				break
			}
		}

		snap := ctrl.Snapshot()
		fmt.Printf("session %s: %d decisions, %d correct (%.0f%%), %d infraction(s)\n",
			sessionID, snap.DecisionTotal, snap.CorrectTotal, snap.Accuracy*100, snap.Infractions)
		if snap.Done {
			fmt.Println("run complete")
		}
		return nil
	},
}

func loadScript(path string) (*operatorScript, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "run: read script %s", path)
	}
	var script operatorScript
	if err := yaml.Unmarshal(raw, &script); err != nil {
		return nil, eris.Wrap(err, "run: parse script")
	}
	if len(script.Actions) == 0 {
		return nil, eris.New("run: script has no actions")
	}
	return &script, nil
}

func applyAction(ctx context.Context, ctrl *session.Controller, a scriptAction) error {
	switch a.Action {
	case "proceed":
		ctrl.Proceed()
	case "start":
		out := ctrl.StartQuery(model.CheckCategory(a.Category))
		if !out.Started {
			zap.L().Warn("run: start rejected",
				zap.String("category", a.Category),
				zap.String("reason", out.Reason),
			)
		}
	case "abort":
		out := ctrl.AbortQuery(model.CheckCategory(a.Category))
		if !out.Aborted && !out.ConfirmArmed {
			zap.L().Warn("run: abort rejected",
				zap.String("category", a.Category),
				zap.String("reason", out.Reason),
			)
		}
	case "tick":
		delta := a.DeltaMs
		if delta <= 0 {
			delta = investigate.TickIntervalMs
		}
		ctrl.Tick(delta)
	case "finish_scan":
		if !ctrl.FinishScan(model.CheckCategory(a.Category)) {
			zap.L().Warn("run: no scan in progress", zap.String("category", a.Category))
		}
	case "answer":
		if !ctrl.RecordInterrogationAnswer(a.QuestionID, a.Response, a.BPM) {
			zap.L().Warn("run: interrogation answer dropped", zap.String("question", a.QuestionID))
		}
	case "decide":
		cons, warning, err := ctrl.CommitDecision(ctx, model.Decision(a.Decision))
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s (severity %d): %s\n", a.Decision, cons.Tier, cons.Severity, cons.Message)
		if warning != nil {
			fmt.Printf("SUPERVISOR: %s\n", warning.Message)
		}
	case "advance":
		if err := ctrl.Advance(ctx); err != nil {
			return err
		}
	default:
		return eris.Errorf("unknown action %q", a.Action)
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runScriptPath, "script", "", "operator script YAML (required)")
	runCmd.Flags().StringVar(&runSessionID, "session", "", "session id (default from script)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "restore from the latest saved snapshot first")
	runCmd.MarkFlagRequired("script") //nolint:errcheck
	rootCmd.AddCommand(runCmd)
}
