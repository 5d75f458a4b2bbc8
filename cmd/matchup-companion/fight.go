package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ramonehamilton/matchup-companion/internal/aggregate"
	"github.com/ramonehamilton/matchup-companion/internal/bucket"
)

// fightFlags are the match context flags shared by score and record.
type fightFlags struct {
	selfLevel     int
	opponentLevel int
	chain         int
	atWar         bool
	selfTotal     float64
	opponentTotal float64
}

func (f *fightFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.selfLevel, "self-level", 0, "Your level (required)")
	fs.IntVar(&f.opponentLevel, "opponent-level", 0, "Opponent level (required)")
	fs.IntVar(&f.chain, "chain", 0, "Current chain count")
	fs.BoolVar(&f.atWar, "war", false, "Your faction is at war")
	fs.Float64Var(&f.selfTotal, "self-stats", 0, "Your total battle stats, if known")
	fs.Float64Var(&f.opponentTotal, "opponent-stats", 0, "Opponent total battle stats, if known")
}

func (f *fightFlags) context() (bucket.MatchContext, error) {
	if f.selfLevel < 1 || f.opponentLevel < 1 {
		return bucket.MatchContext{}, fmt.Errorf("--self-level and --opponent-level must be at least 1")
	}
	if f.chain < 0 {
		return bucket.MatchContext{}, fmt.Errorf("--chain cannot be negative")
	}
	m := bucket.MatchContext{
		SelfLevel:     f.selfLevel,
		OpponentLevel: f.opponentLevel,
		ChainCount:    f.chain,
		AtWar:         f.atWar,
	}
	if f.selfTotal > 0 {
		m.SelfStats = &bucket.Stats{Total: f.selfTotal}
	}
	if f.opponentTotal > 0 {
		m.OpponentStats = &bucket.Stats{Total: f.opponentTotal}
	}
	return m, nil
}

var (
	scoreFight   fightFlags
	scoreRefresh bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a potential fight",
	Long: `Score a potential fight on a 0-5 scale, from very easy to very hard.

Examples:
  matchup-companion score --self-level 12 --opponent-level 15 --chain 40
  matchup-companion score --self-level 30 --opponent-level 28 --opponent-stats 120000 --json`,
	RunE: runScore,
}

var (
	recordFight   fightFlags
	recordWon     bool
	recordLost    bool
	recordRespect float64
	recordEnergy  float64
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the outcome of a fight",
	Long: `Record a finished fight into the local aggregate. The outcome is shared with
the snapshot server on the next push.

Examples:
  matchup-companion record --self-level 12 --opponent-level 15 --won --respect 3.2 --energy 25`,
	RunE: runRecord,
}

func init() {
	scoreFight.register(scoreCmd.Flags())
	scoreCmd.Flags().BoolVar(&scoreRefresh, "refresh", true, "Merge community data first when it is stale")
	rootCmd.AddCommand(scoreCmd)

	recordFight.register(recordCmd.Flags())
	recordCmd.Flags().BoolVar(&recordWon, "won", false, "The fight was won")
	recordCmd.Flags().BoolVar(&recordLost, "lost", false, "The fight was lost")
	recordCmd.Flags().Float64Var(&recordRespect, "respect", 0, "Respect gained")
	recordCmd.Flags().Float64Var(&recordEnergy, "energy", 0, "Energy spent")
	recordCmd.MarkFlagsMutuallyExclusive("won", "lost")
	recordCmd.MarkFlagsOneRequired("won", "lost")
	rootCmd.AddCommand(recordCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	match, err := scoreFight.context()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if scoreRefresh && a.Scheduler != nil {
		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if _, err := a.Advisor.Refresh(refreshCtx); err != nil {
			a.Logger.Warn("community data unavailable, scoring from local data", "error", err)
		}
		cancel()
	}

	score := a.Advisor.Score(ctx, match)
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), score)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderScore(score))
	return nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	match, err := recordFight.context()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	key, err := a.Advisor.Record(ctx, match, aggregate.Outcome{
		Won:     recordWon,
		Respect: recordRespect,
		Energy:  recordEnergy,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]string{"bucket": key.String()})
	}
	agg, _ := a.Local.Bucket(key)
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded in %s (%d fights, %.0f%% won)\n", titleStyle.Render(key.String()), agg.Count, agg.WinRate()*100)
	return nil
}
