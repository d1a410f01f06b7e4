// Package main provides racectl, the race officials' command line tool.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/singletrack/race-control/internal/config"
	"github.com/singletrack/race-control/internal/database"
	applogger "github.com/singletrack/race-control/internal/logger"
	"github.com/singletrack/race-control/internal/models"
	"github.com/singletrack/race-control/internal/repository"
	"github.com/singletrack/race-control/internal/service"
	"github.com/singletrack/race-control/internal/timeutil"
	"github.com/singletrack/race-control/internal/weather"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configFile string
	appLog     *logrus.Logger
	cfg        *config.Config
	db         *database.DB
	repos      *repository.Repositories

	raceSvc      *service.RaceService
	resultSvc    *service.ResultService
	standingsSvc *service.StandingsService
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")

	raceCmd.AddCommand(raceCreateCmd, raceListCmd, raceOpenCmd, raceCloseCmd, raceCanStartCmd,
		raceStartCmd, raceFinishCmd, raceCancelCmd, raceWeatherCmd)
	riderCmd.AddCommand(riderAddCmd, riderListCmd, riderAvailableCmd)
	resultCmd.AddCommand(resultRegisterCmd, resultFinishCmd, resultSetStatusCmd)

	rootCmd.AddCommand(raceCmd, riderCmd, resultCmd,
		standingsCmd, top3Cmd, reportCmd, dnfCmd, statsCmd, completionCmd)

	raceCreateCmd.Flags().String("name", "", "Race name")
	raceCreateCmd.Flags().String("location", "", "Location name")
	raceCreateCmd.Flags().Float64("lat", 0, "Latitude")
	raceCreateCmd.Flags().Float64("lon", 0, "Longitude")
	raceCreateCmd.Flags().String("start", "", "Scheduled start time (RFC3339)")
	raceCreateCmd.Flags().Float64("distance", 0, "Distance in km")
	raceCreateCmd.Flags().String("terrain", "", "Terrain description")
	raceCreateCmd.Flags().String("difficulty", "", "Difficulty grade")
	raceCreateCmd.Flags().String("categories", "", "Comma-separated admitted categories (empty admits all)")
	raceCreateCmd.MarkFlagRequired("name")
	raceCreateCmd.MarkFlagRequired("start")

	riderAddCmd.Flags().String("first-name", "", "First name")
	riderAddCmd.Flags().String("last-name", "", "Last name")
	riderAddCmd.Flags().String("email", "", "Email address")
	riderAddCmd.Flags().String("category", "", "Rider category")
	riderAddCmd.MarkFlagRequired("first-name")
	riderAddCmd.MarkFlagRequired("last-name")
	riderAddCmd.MarkFlagRequired("email")

	resultSetStatusCmd.Flags().String("notes", "", "Reason notes (stored verbatim)")
}

var rootCmd = &cobra.Command{
	Use:     "racectl",
	Short:   "Administer mountain bike races, riders, and results",
	Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWithDefaults(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return setupDependencies(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func setupDependencies(ctx context.Context) error {
	appLog = applogger.NewLogger("warn")
	audit := applogger.NewAuditLogger(appLog)

	var err error
	db, err = database.Initialize(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	repos, err = repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	standingsSvc = service.NewStandingsService(repos.Race, repos.Result, repos.Rider, appLog)
	raceSvc = service.NewRaceService(repos.Race, repos.Result, appLog, audit)
	resultSvc = service.NewResultService(repos.Race, repos.Result, repos.Rider, standingsSvc, nil, appLog, audit)

	return nil
}

func parseID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", models.ErrInvalidID, arg)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var raceCmd = &cobra.Command{
	Use:   "race",
	Short: "Manage races",
}

var raceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a race in draft status",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		startRaw, _ := cmd.Flags().GetString("start")
		startTime, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}

		race := &models.Race{
			Name:      name,
			StartTime: startTime,
		}
		race.LocationName, _ = cmd.Flags().GetString("location")
		race.DistanceKm, _ = cmd.Flags().GetFloat64("distance")
		race.Terrain, _ = cmd.Flags().GetString("terrain")
		race.Difficulty, _ = cmd.Flags().GetString("difficulty")

		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			race.Latitude = &lat
			race.Longitude = &lon
		}
		if categories, _ := cmd.Flags().GetString("categories"); categories != "" {
			race.Categories = strings.Split(categories, ",")
		}

		if err := raceSvc.Create(cmd.Context(), race); err != nil {
			return err
		}
		return printJSON(race)
	},
}

var raceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List races",
	RunE: func(cmd *cobra.Command, args []string) error {
		races, total, err := raceSvc.List(cmd.Context(), 100, 0)
		if err != nil {
			return err
		}
		fmt.Printf("%d race(s)\n", total)
		return printJSON(races)
	},
}

var raceOpenCmd = &cobra.Command{
	Use:   "open <race-id>",
	Short: "Open a draft race for registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		race, err := raceSvc.Open(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(race)
	},
}

var raceCloseCmd = &cobra.Command{
	Use:   "close <race-id>",
	Short: "Close an open race to further registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		race, err := raceSvc.CloseRegistration(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(race)
	},
}

var raceCanStartCmd = &cobra.Command{
	Use:   "can-start <race-id>",
	Short: "Check whether a race can be started now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		check, err := raceSvc.CanStart(cmd.Context(), raceID, false)
		if err != nil {
			return err
		}
		return printJSON(check)
	},
}

var raceStartCmd = &cobra.Command{
	Use:   "start <race-id>",
	Short: "Mass-start a race: every registered rider starts on one shared clock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		outcome, err := raceSvc.Start(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		fmt.Printf("Started %d rider(s) at %s\n", outcome.RidersStarted, outcome.MassStartTime.Format(time.RFC3339))
		return printJSON(outcome.Race)
	},
}

var raceFinishCmd = &cobra.Command{
	Use:   "finish <race-id>",
	Short: "Complete an in-progress race",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		race, err := raceSvc.Finish(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(race)
	},
}

var raceCancelCmd = &cobra.Command{
	Use:   "cancel <race-id>",
	Short: "Cancel a race that has not completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		race, err := raceSvc.Cancel(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(race)
	},
}

var raceWeatherCmd = &cobra.Command{
	Use:   "weather <race-id>",
	Short: "Refresh the stored weather snapshot for a race",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		if !cfg.Weather.Enabled {
			return fmt.Errorf("weather provider is disabled in configuration")
		}

		clientCfg := weather.DefaultClientConfig(cfg.Weather.BaseURL)
		clientCfg.Timeout = time.Duration(cfg.Weather.TimeoutSeconds) * time.Second
		clientCfg.MaxRetries = cfg.Weather.RetryAttempts
		clientCfg.RateLimit = cfg.Weather.RateLimitPerSecond

		provider := weather.NewClient(clientCfg, appLog)
		weatherSvc := service.NewWeatherService(repos.Race, provider, appLog, applogger.NewAuditLogger(appLog))

		snap, err := weatherSvc.RefreshRaceWeather(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

var riderCmd = &cobra.Command{
	Use:   "rider",
	Short: "Manage the rider directory",
}

var riderAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rider",
	RunE: func(cmd *cobra.Command, args []string) error {
		rider := &models.Rider{ID: uuid.New()}
		rider.FirstName, _ = cmd.Flags().GetString("first-name")
		rider.LastName, _ = cmd.Flags().GetString("last-name")
		rider.Email, _ = cmd.Flags().GetString("email")
		rider.Category, _ = cmd.Flags().GetString("category")

		if err := repos.Rider.Create(cmd.Context(), rider); err != nil {
			return err
		}
		return printJSON(rider)
	},
}

var riderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all riders",
	RunE: func(cmd *cobra.Command, args []string) error {
		riders, err := repos.Rider.GetAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(riders)
	},
}

var riderAvailableCmd = &cobra.Command{
	Use:   "available <race-id>",
	Short: "List riders not entered in a race, with eligibility",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		availability, err := standingsSvc.NotInRace(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(availability)
	},
}

var resultCmd = &cobra.Command{
	Use:   "result",
	Short: "Manage race results",
}

var resultRegisterCmd = &cobra.Command{
	Use:   "register <race-id> <rider-id>",
	Short: "Register a rider for a race",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		riderID, err := parseID(args[1])
		if err != nil {
			return err
		}
		result, err := resultSvc.Register(cmd.Context(), raceID, riderID)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var resultFinishCmd = &cobra.Command{
	Use:   "finish <race-id> <rider-id>",
	Short: "Record a rider crossing the finish line",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		riderID, err := parseID(args[1])
		if err != nil {
			return err
		}
		finished, err := resultSvc.FinishRider(cmd.Context(), raceID, riderID)
		if err != nil {
			return err
		}
		if finished.FormattedTime != nil {
			fmt.Printf("Position %d, time %s\n", finished.Position, *finished.FormattedTime)
		}
		return printJSON(finished.Result)
	},
}

var resultSetStatusCmd = &cobra.Command{
	Use:   "set-status <race-id> <rider-id> <status>",
	Short: "Override a result status (dnf, dsq, ...)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		riderID, err := parseID(args[1])
		if err != nil {
			return err
		}

		var notes *string
		if n, _ := cmd.Flags().GetString("notes"); n != "" {
			notes = &n
		}

		result, err := resultSvc.SetStatus(cmd.Context(), raceID, riderID, models.ResultStatus(args[2]), notes)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var standingsCmd = &cobra.Command{
	Use:   "standings <race-id>",
	Short: "Show live standings for a race",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		standings, err := standingsSvc.Live(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(standings)
	},
}

var top3Cmd = &cobra.Command{
	Use:   "top3 <race-id>",
	Short: "Show the podium with gaps to the winner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		podium, err := standingsSvc.Top3(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		for _, entry := range podium {
			line := fmt.Sprintf("%d. %s", entry.Rank, timeutil.FormatSeconds(entry.Result.GetTotalTime()))
			if entry.Gap != nil {
				line += " (" + *entry.Gap + ")"
			}
			fmt.Println(line)
		}
		return printJSON(podium)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <race-id>",
	Short: "Show the full post-race report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		report, err := standingsSvc.Report(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		if !report.Found() {
			fmt.Println("Race not found")
			os.Exit(1)
		}
		return printJSON(report)
	},
}

var dnfCmd = &cobra.Command{
	Use:   "dnf <race-id>",
	Short: "Show non-finishers with aggregated reasons",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		report, err := standingsSvc.DidNotFinish(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <race-id>",
	Short: "Show per-status result counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		counts, err := standingsSvc.Stats(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(counts)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion <race-id>",
	Short: "Show the completion analysis for a race",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		analysis, err := standingsSvc.CompletionAnalysis(cmd.Context(), raceID)
		if err != nil {
			return err
		}
		return printJSON(analysis)
	},
}
