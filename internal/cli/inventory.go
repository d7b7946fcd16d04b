package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/views"
)

func addInventoryCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newInventoryCmd(app))
}

// InventoryReport is the JSON shape of the inventory command.
type InventoryReport struct {
	Company models.Company       `json:"company"`
	Rows    []views.InventoryRow `json:"rows"`
	Orders  []models.MarketOrder `json:"orders"`
	Warning string               `json:"warning,omitempty"`
}

func newInventoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inventory",
		Aliases: []string{"inv"},
		Short:   "Show a company's cash, holdings and open orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			raw, _ := cmd.Flags().GetString("company")
			company, err := app.resolveCompany(ctx, raw)
			if err != nil {
				return err
			}
			items, err := app.API.Inventory(ctx, company.ID)
			if err != nil {
				return err
			}
			goods, err := app.API.Goods(ctx)
			if err != nil {
				return err
			}
			orders, err := app.API.Orders(ctx)
			if err != nil {
				return err
			}

			report := InventoryReport{
				Company: company,
				Orders:  views.MarketTable(views.ForCompany(orders, company.ID)),
			}
			report.Rows, err = views.Inventory(items, goods, company.ID)
			var consistency *apperrors.ConsistencyError
			if apperrors.As(err, &consistency) {
				report.Warning = consistency.Error()
			} else if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			renderInventory(output, report)
			return nil
		},
	}
	cmd.Flags().String("company", "", "company id or name")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func renderInventory(output *Output, r InventoryReport) {
	output.Bold("%s", r.Company.Name)
	output.Printf("  Cash %s\n", FormatCash(r.Company.Cash))
	output.Println()
	if r.Warning != "" {
		output.Warning("Inconsistent snapshot: %s", r.Warning)
	}
	renderInventoryRows(output, r.Rows)
	output.Println()
	output.Info("Open orders")
	id := r.Company.ID
	renderOrders(output, r.Orders, &id, true)
}

func renderInventoryRows(output *Output, rows []views.InventoryRow) {
	if len(rows) == 0 {
		output.Dim("Inventory is empty")
		return
	}
	table := NewTable(output, "GOOD", "QTY", "RESERVED", "AVAILABLE")
	for _, row := range rows {
		reserved := ""
		if row.ShowReserved() {
			reserved = FormatQuantity(row.Reserved)
		}
		table.AddRow(row.GoodName, FormatQuantity(row.Quantity), reserved, availableCell(output, row))
	}
	table.Render()
}

// availableCell never prints a negative available amount.
func availableCell(output *Output, row views.InventoryRow) string {
	if row.Violation {
		return output.Red("!")
	}
	return FormatQuantity(row.Available)
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
