package cli

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/session"
)

func addOrderCommands(rootCmd *cobra.Command, app *App) {
	orderCmd := &cobra.Command{
		Use:   "order",
		Short: "Place and cancel market orders",
	}
	orderCmd.AddCommand(newOrderPlaceCmd(app))
	orderCmd.AddCommand(newOrderCancelCmd(app))
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(newSpeedCmd(app))
}

func newOrderPlaceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place a limit order",
		Long: `Place a limit order for a company. A sell order reserves the quantity
in the company's inventory until it fills or is cancelled.

Example:
  econsim order place --company acme --good iron --side sell --price 12 --qty 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			company, err := app.requiredCompany(cmd)
			if err != nil {
				return err
			}
			rawGood, _ := cmd.Flags().GetString("good")
			good, err := app.resolveGood(ctx, rawGood)
			if err != nil {
				return err
			}
			rawSide, _ := cmd.Flags().GetString("side")
			side, err := app.Validator.ValidateOrderType(rawSide)
			if err != nil {
				return err
			}
			rawPrice, _ := cmd.Flags().GetString("price")
			price, err := app.Validator.ParseInt("price", rawPrice)
			if err != nil {
				return err
			}
			rawQty, _ := cmd.Flags().GetString("qty")
			qty, err := app.Validator.ParseInt("quantity", rawQty)
			if err != nil {
				return err
			}

			sess, err := app.mutationSession(cmd, selections{company: &company.ID, good: &good.ID})
			if err != nil {
				return err
			}
			defer sess.Close()

			placed, err := sess.PlaceOrder(ctx, session.OrderTicket{Side: side, Price: price, Quantity: qty})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(placed)
			}
			output.Success("Order #%d placed: %s %s %s @ %s",
				placed.ID, output.Side(string(side)), FormatQuantity(qty), good.Name, FormatQuantity(price))
			if side == models.OrderTypeSell {
				rows, err := sess.InventoryRows()
				var consistency *apperrors.ConsistencyError
				if apperrors.As(err, &consistency) {
					output.Warning("Inconsistent snapshot: %s", consistency.Error())
				}
				for _, r := range rows {
					if r.GoodID == good.ID && r.ShowReserved() {
						output.Dim("%s reserved, %s available", FormatQuantity(r.Reserved), availableCell(output, r))
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().String("company", "", "ordering company (id or name)")
	cmd.Flags().String("good", "", "good id or name")
	cmd.Flags().String("side", "", "buy or sell")
	cmd.Flags().String("price", "", "price per unit")
	cmd.Flags().String("qty", "", "quantity")
	for _, name := range []string{"company", "good", "side", "price", "qty"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newOrderCancelCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			company, err := app.requiredCompany(cmd)
			if err != nil {
				return err
			}
			orderID, err := app.Validator.ParseInt("order_id", args[0])
			if err != nil {
				return err
			}

			sess, err := app.mutationSession(cmd, selections{company: &company.ID})
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.CancelOrder(ctx, orderID); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]any{"status": "cancelled", "order_id": orderID})
			}
			output.Success("Order #%d cancelled", orderID)
			return nil
		},
	}
	cmd.Flags().String("company", "", "company owning the order (id or name)")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

// SpeedView is the JSON shape of the speed command.
type SpeedView struct {
	Multiplier decimal.Decimal   `json:"speed_multiplier"`
	Presets    []decimal.Decimal `json:"presets"`
}

func newSpeedCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speed",
		Short: "Show the simulation speed",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			speed, err := app.API.Speed(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(SpeedView{Multiplier: speed.Multiplier, Presets: app.Config.SpeedPresets()})
			}
			renderSpeed(output, app.Config.SpeedPresets(), speed.Multiplier)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <multiplier>",
		Short: "Change the simulation speed",
		Long: `Change the simulation speed. The multiplier may carry an "x" suffix.

Example:
  econsim speed set 10x`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			multiplier, err := app.Validator.ParseMultiplier(args[0])
			if err != nil {
				return err
			}

			sess, err := app.mutationSession(cmd, selections{})
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.SetSpeed(ctx, multiplier); err != nil {
				return err
			}
			current := sess.Speed.Value().Multiplier
			if output.IsJSON() {
				return output.JSON(SpeedView{Multiplier: current, Presets: app.Config.SpeedPresets()})
			}
			output.Success("Simulation speed set to %s", FormatSpeed(current))
			return nil
		},
	})
	return cmd
}

func renderSpeed(output *Output, presets []decimal.Decimal, current decimal.Decimal) {
	output.Printf("Simulation speed: %s\n", output.ColoredString(ColorBold, FormatSpeed(current)))
	labels := make([]string, 0, len(presets))
	for _, p := range presets {
		label := FormatSpeed(p)
		if p.Equal(current) {
			label = output.Green("[" + label + "]")
		}
		labels = append(labels, label)
	}
	output.Printf("Presets: %s\n", strings.Join(labels, " "))
}
