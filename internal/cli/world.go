package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"econsim-terminal/internal/models"
	"econsim-terminal/internal/session"
	"econsim-terminal/internal/views"
)

func addWorldCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newMapCmd(app))
	rootCmd.AddCommand(newClaimCmd(app))
	rootCmd.AddCommand(newBuildCmd(app))
}

// MapEntry is one location of the map command's JSON output.
type MapEntry struct {
	models.Location
	Ownership views.Ownership `json:"ownership"`
	CanClaim  bool            `json:"can_claim"`
	Buildable []int64         `json:"buildable"`
}

func mapEntry(loc models.Location, company *int64) MapEntry {
	entry := MapEntry{
		Location:  loc,
		Ownership: views.OwnershipOf(loc, company),
		CanClaim:  views.CanClaim(loc, company),
		Buildable: []int64{},
	}
	for _, d := range views.BuildableDeposits(loc, company) {
		entry.Buildable = append(entry.Buildable, d.GoodID)
	}
	return entry
}

func newMapCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Show the world map",
		Long: `Show every location with its claim state. With --company, locations are
classified relative to that company and the claim and build actions it
may take are listed. With --location, one location is shown in detail.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			company, err := app.optionalCompany(cmd)
			if err != nil {
				return err
			}
			locations, err := app.API.Map(ctx)
			if err != nil {
				return err
			}
			locations = views.LocationsByName(locations)

			if raw, _ := cmd.Flags().GetString("location"); raw != "" {
				loc, err := findLocation(locations, raw)
				if err != nil {
					return err
				}
				entry := mapEntry(loc, company)
				if output.IsJSON() {
					return output.JSON(entry)
				}
				renderLocation(output, entry)
				return nil
			}

			entries := make([]MapEntry, 0, len(locations))
			for _, loc := range locations {
				entries = append(entries, mapEntry(loc, company))
			}
			if output.IsJSON() {
				return output.JSON(entries)
			}
			renderMap(output, entries)
			return nil
		},
	}
	cmd.Flags().String("company", "", "company id or name viewing the map")
	cmd.Flags().String("location", "", "show one location (id or name)")
	return cmd
}

// findLocation accepts a location id or a case-insensitive name.
func findLocation(locations []models.Location, raw string) (models.Location, error) {
	raw = strings.TrimSpace(raw)
	for _, l := range locations {
		if idString(l.ID) == raw || strings.EqualFold(l.Name, raw) {
			return l, nil
		}
	}
	return models.Location{}, fmt.Errorf("unknown location %q", raw)
}

func ownershipLabel(output *Output, loc models.Location, o views.Ownership) string {
	switch o {
	case views.OwnedByViewer:
		return output.Green("yours")
	case views.OwnedByOther:
		if loc.ClaimedByCompanyName != nil {
			return output.Red(*loc.ClaimedByCompanyName)
		}
		return output.Red(fmt.Sprintf("company #%d", *loc.ClaimedByCompanyID))
	default:
		return output.DimText("unclaimed")
	}
}

func renderMap(output *Output, entries []MapEntry) {
	if len(entries) == 0 {
		output.Dim("The map is empty")
		return
	}
	table := NewTable(output, "ID", "NAME", "POS", "BIOME", "DEPOSITS", "SITES", "OWNER")
	for _, e := range entries {
		deposits := make([]string, 0, len(e.Deposits))
		for _, d := range e.Deposits {
			deposits = append(deposits, d.GoodName)
		}
		table.AddRow(
			idString(e.ID),
			e.Name,
			fmt.Sprintf("%.0f,%.0f", e.X, e.Y),
			e.Biome,
			TruncateString(strings.Join(deposits, " "), 30),
			fmt.Sprintf("%d", len(e.ExtractionSites)),
			ownershipLabel(output, e.Location, e.Ownership),
		)
	}
	table.Render()
}

func renderLocation(output *Output, e MapEntry) {
	output.Bold("%s", e.Name)
	output.Printf("  Position   %.0f, %.0f\n", e.X, e.Y)
	if e.Biome != "" {
		output.Printf("  Biome      %s\n", e.Biome)
	}
	output.Printf("  Owner      %s\n", ownershipLabel(output, e.Location, e.Ownership))
	output.Println()

	output.Info("Deposits")
	if len(e.Deposits) == 0 {
		output.Dim("None")
	} else {
		buildable := map[int64]bool{}
		for _, id := range e.Buildable {
			buildable[id] = true
		}
		table := NewTable(output, "GOOD", "REMAINING", "")
		for _, d := range e.Deposits {
			mark := ""
			if buildable[d.GoodID] {
				mark = output.Yellow("buildable")
			}
			table.AddRow(d.GoodName, FormatQuantity(d.RemainingAmount), mark)
		}
		table.Render()
	}
	output.Println()

	output.Info("Extraction sites")
	if len(e.ExtractionSites) == 0 {
		output.Dim("None")
	} else {
		table := NewTable(output, "ID", "GOOD", "RATE/H", "COMPANY", "STATE")
		for _, s := range e.ExtractionSites {
			state := output.DimText("idle")
			if s.Active {
				state = output.Green("active")
			}
			table.AddRow(idString(s.ID), s.GoodName, FormatQuantity(s.RatePerHour), s.CompanyName, state)
		}
		table.Render()
	}

	if e.CanClaim {
		output.Println()
		output.Dim("Claim with: econsim claim %d --company <company>", e.ID)
	}
}

func newClaimCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim <location>",
		Short: "Claim a location for a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			company, err := app.requiredCompany(cmd)
			if err != nil {
				return err
			}
			locationID, err := app.locationID(cmd, args[0])
			if err != nil {
				return err
			}

			sess, err := app.mutationSession(cmd, selections{company: &company.ID, location: &locationID})
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.ClaimLocation(ctx, locationID); err != nil {
				return err
			}
			loc, _ := sess.SelectedLocation()
			if output.IsJSON() {
				return output.JSON(mapEntry(loc, &company.ID))
			}
			output.Success("%s claimed %s", company.Name, loc.Name)
			return nil
		},
	}
	cmd.Flags().String("company", "", "claiming company (id or name)")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func newBuildCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <location> <good>",
		Short: "Build an extractor on a claimed location",
		Long: `Build an extractor for a deposit on a location the company has claimed.
The rate defaults to trading.extractor_rate_per_hour from the config.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			company, err := app.requiredCompany(cmd)
			if err != nil {
				return err
			}
			locationID, err := app.locationID(cmd, args[0])
			if err != nil {
				return err
			}
			good, err := app.resolveGood(ctx, args[1])
			if err != nil {
				return err
			}
			rate, _ := cmd.Flags().GetInt64("rate")

			sess, err := app.mutationSession(cmd, selections{company: &company.ID, location: &locationID})
			if err != nil {
				return err
			}
			defer sess.Close()

			site, err := sess.BuildExtractor(ctx, locationID, good.ID, rate)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(site)
			}
			output.Success("Extractor #%d built for %s at %s/h", site.ID, good.Name, FormatQuantity(site.RatePerHour))
			return nil
		},
	}
	cmd.Flags().String("company", "", "building company (id or name)")
	cmd.Flags().Int64("rate", 0, "extraction rate per hour (default from config)")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

// requiredCompany resolves the --company flag of a mutating command.
func (a *App) requiredCompany(cmd *cobra.Command) (models.Company, error) {
	raw, _ := cmd.Flags().GetString("company")
	return a.resolveCompany(cmd.Context(), raw)
}

// locationID resolves a location argument. Numeric ids are passed through
// unchecked; names are looked up on the map.
func (a *App) locationID(cmd *cobra.Command, raw string) (int64, error) {
	if id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
		return id, nil
	}
	locations, err := a.API.Map(cmd.Context())
	if err != nil {
		return 0, err
	}
	loc, err := findLocation(locations, raw)
	if err != nil {
		return 0, err
	}
	return loc.ID, nil
}

// mutationSession opens a session for a single action. Sources that failed
// to load are reported but do not stop the action; the server decides.
func (a *App) mutationSession(cmd *cobra.Command, sel selections) (*session.Session, error) {
	sess, err := a.openSession(cmd.Context(), sel)
	if sess == nil {
		return nil, err
	}
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Some data failed to load")
	}
	return sess, nil
}
