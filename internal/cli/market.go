package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"econsim-terminal/internal/models"
	"econsim-terminal/internal/views"
)

func addMarketCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCompaniesCmd(app))
	rootCmd.AddCommand(newGoodsCmd(app))
	rootCmd.AddCommand(newMarketCmd(app))
	rootCmd.AddCommand(newLadderCmd(app))
	rootCmd.AddCommand(newBookCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
	rootCmd.AddCommand(newCandlesCmd(app))
}

func newCompaniesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "companies",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			companies, err := app.API.Companies(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(companies, func(i, j int) bool { return companies[i].ID < companies[j].ID })
			if output.IsJSON() {
				return output.JSON(companies)
			}
			table := NewTable(output, "ID", "NAME", "CASH")
			for _, c := range companies {
				table.AddRow(strconv.FormatInt(c.ID, 10), c.Name, FormatCash(c.Cash))
			}
			table.Render()
			return nil
		},
	}
}

func newGoodsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "goods",
		Short: "List the goods catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			goods, err := app.API.Goods(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(goods, func(i, j int) bool { return goods[i].ID < goods[j].ID })
			if output.IsJSON() {
				return output.JSON(goods)
			}
			table := NewTable(output, "ID", "NAME")
			for _, g := range goods {
				table.AddRow(strconv.FormatInt(g.ID, 10), g.Name)
			}
			table.Render()
			return nil
		},
	}
}

func newMarketCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Show every open order grouped by good",
		Long: `Show every open order grouped by good: buys before sells, buys by price
descending and sells by price ascending. With --company, the orders that
company may cancel are marked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			company, err := app.optionalCompany(cmd)
			if err != nil {
				return err
			}
			orders, err := app.API.Orders(cmd.Context())
			if err != nil {
				return err
			}
			table := views.MarketTable(orders)
			if output.IsJSON() {
				return output.JSON(table)
			}
			renderOrders(output, table, company, true)
			return nil
		},
	}
	cmd.Flags().String("company", "", "company id or name viewing the market")
	return cmd
}

func renderOrders(output *Output, orders []models.MarketOrder, company *int64, withGood bool) {
	if len(orders) == 0 {
		output.Dim("No open orders")
		return
	}
	headers := []string{"ID"}
	if withGood {
		headers = append(headers, "GOOD")
	}
	headers = append(headers, "SIDE", "PRICE", "QTY", "COMPANY")
	if company != nil {
		headers = append(headers, "")
	}
	table := NewTable(output, headers...)
	for _, o := range orders {
		row := []string{strconv.FormatInt(o.ID, 10)}
		if withGood {
			row = append(row, o.GoodName)
		}
		row = append(row,
			output.Side(string(o.OrderType)),
			FormatQuantity(o.PricePerUnit),
			FormatQuantity(o.Quantity),
			o.CompanyName,
		)
		if company != nil {
			mark := ""
			if views.CanCancel(o, company) {
				mark = output.Yellow("cancellable")
			}
			row = append(row, mark)
		}
		table.AddRow(row...)
	}
	table.Render()
}

// LadderView is the JSON shape of the ladder command.
type LadderView struct {
	Good  models.Good          `json:"good"`
	Buy   []models.MarketOrder `json:"buy"`
	Sell  []models.MarketOrder `json:"sell"`
	Depth models.OrderBook     `json:"depth"`
	Quote views.Quote          `json:"quote"`
}

func newLadderCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ladder",
		Short: "Show the buy and sell ladders of one good",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			raw, _ := cmd.Flags().GetString("good")
			good, err := app.resolveGood(cmd.Context(), raw)
			if err != nil {
				return err
			}
			company, err := app.optionalCompany(cmd)
			if err != nil {
				return err
			}
			orders, err := app.API.Orders(cmd.Context())
			if err != nil {
				return err
			}
			forGood := views.ForGood(orders, good.ID)
			depth := views.Depth(orders, good.ID)
			view := LadderView{
				Good:  good,
				Buy:   views.BuyLadder(forGood),
				Sell:  views.SellLadder(forGood),
				Depth: depth,
				Quote: views.TopOfBook(depth),
			}
			if output.IsJSON() {
				return output.JSON(view)
			}

			output.Bold("%s", good.Name)
			renderQuote(output, view.Quote)
			output.Println()
			output.Info("Sell ladder")
			renderOrders(output, view.Sell, company, false)
			output.Println()
			output.Info("Buy ladder")
			renderOrders(output, view.Buy, company, false)
			return nil
		},
	}
	cmd.Flags().String("good", "", "good id or name")
	cmd.Flags().String("company", "", "company id or name viewing the ladder")
	_ = cmd.MarkFlagRequired("good")
	return cmd
}

func renderQuote(output *Output, q views.Quote) {
	output.Printf("  Bid %s  Ask %s  Spread %s\n",
		output.Green(FormatPrice(q.BestBid)),
		output.Red(FormatPrice(q.BestAsk)),
		FormatPrice(q.Spread))
}

// BookView is the JSON shape of the book command.
type BookView struct {
	Good  models.Good        `json:"good"`
	Book  models.OrderBook   `json:"book"`
	Stats models.MarketStats `json:"stats"`
	// Local is derived from the order list. It differs from Book only when
	// the two were read at different moments.
	Local models.OrderBook `json:"local"`
}

func newBookCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Show the aggregated order book and statistics of one good",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			raw, _ := cmd.Flags().GetString("good")
			good, err := app.resolveGood(ctx, raw)
			if err != nil {
				return err
			}
			book, err := app.API.OrderBook(ctx, good.ID)
			if err != nil {
				return err
			}
			stats, err := app.API.Stats(ctx, good.ID)
			if err != nil {
				return err
			}
			orders, err := app.API.Orders(ctx)
			if err != nil {
				return err
			}
			view := BookView{Good: good, Book: book, Stats: stats, Local: views.Depth(orders, good.ID)}
			if output.IsJSON() {
				return output.JSON(view)
			}

			output.Bold("%s", good.Name)
			output.Printf("  Last %s  Bid %s  Ask %s  Spread %s\n",
				FormatPrice(stats.LastPrice),
				output.Green(FormatPrice(stats.BestBid)),
				output.Red(FormatPrice(stats.BestAsk)),
				FormatPrice(stats.Spread))
			output.Println()
			renderBook(output, book)
			return nil
		},
	}
	cmd.Flags().String("good", "", "good id or name")
	_ = cmd.MarkFlagRequired("good")
	return cmd
}

func renderBook(output *Output, book models.OrderBook) {
	var maxQty int64
	for _, l := range append(append([]models.OrderBookLevel{}, book.Buy...), book.Sell...) {
		maxQty = max(maxQty, l.Quantity)
	}
	table := NewTable(output, "SIDE", "PRICE", "QTY", "")
	// asks from the top down, so the best ask sits just above the best bid
	for i := len(book.Sell) - 1; i >= 0; i-- {
		l := book.Sell[i]
		table.AddRow(output.Red("ask"), FormatQuantity(l.Price), FormatQuantity(l.Quantity), output.Red(Bar(l.Quantity, maxQty, 20)))
	}
	for _, l := range book.Buy {
		table.AddRow(output.Green("bid"), FormatQuantity(l.Price), FormatQuantity(l.Quantity), output.Green(Bar(l.Quantity, maxQty, 20)))
	}
	table.Render()
	output.Dim("Bid depth %s  Ask depth %s",
		FormatQuantity(views.TotalQuantity(book.Buy)),
		FormatQuantity(views.TotalQuantity(book.Sell)))
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Show recent trades, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			goodID, err := app.optionalGood(cmd, "good")
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			trades, err := app.API.Trades(ctx)
			if err != nil {
				return err
			}
			goods, err := app.API.Goods(ctx)
			if err != nil {
				return err
			}
			companies, err := app.API.Companies(ctx)
			if err != nil {
				return err
			}

			filtered := make([]models.Trade, 0, len(trades))
			for _, t := range trades {
				if goodID != nil && t.GoodID != *goodID {
					continue
				}
				filtered = append(filtered, t)
			}
			sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].ID > filtered[j].ID })
			if limit > 0 && len(filtered) > limit {
				filtered = filtered[:limit]
			}
			if output.IsJSON() {
				return output.JSON(filtered)
			}
			renderTrades(output, filtered, goods, companies)
			return nil
		},
	}
	cmd.Flags().String("good", "", "only trades of this good (id or name)")
	cmd.Flags().Int("limit", 20, "maximum number of trades")
	return cmd
}

func renderTrades(output *Output, trades []models.Trade, goods []models.Good, companies []models.Company) {
	if len(trades) == 0 {
		output.Dim("No trades")
		return
	}
	names := views.GoodNames(goods)
	companyName := func(id int64) string {
		if c, ok := views.CompanyByID(companies, id); ok {
			return c.Name
		}
		return fmt.Sprintf("#%d", id)
	}
	table := NewTable(output, "TIME", "GOOD", "PRICE", "QTY", "BUYER", "SELLER")
	for _, t := range trades {
		name, ok := names[t.GoodID]
		if !ok {
			name = fmt.Sprintf("#%d", t.GoodID)
		}
		table.AddRow(
			FormatTime(t.CreatedAt.Time),
			name,
			FormatQuantity(t.PricePerUnit),
			FormatQuantity(t.Quantity),
			companyName(t.BuyerCompanyID),
			companyName(t.SellerCompanyID),
		)
	}
	table.Render()
}

func newCandlesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candles",
		Short: "Show per-minute candles of one good",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			raw, _ := cmd.Flags().GetString("good")
			good, err := app.resolveGood(ctx, raw)
			if err != nil {
				return err
			}
			minutes, _ := cmd.Flags().GetInt("minutes")
			if minutes <= 0 {
				minutes = app.Config.Polling.CandleMinutes
			}
			candles, err := app.API.Candles(ctx, good.ID, minutes)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(candles)
			}
			output.Bold("%s, last %d minutes", good.Name, minutes)
			renderCandles(output, candles)
			return nil
		},
	}
	cmd.Flags().String("good", "", "good id or name")
	cmd.Flags().Int("minutes", 0, "window in minutes (default from config)")
	_ = cmd.MarkFlagRequired("good")
	return cmd
}

func renderCandles(output *Output, candles []models.Candle) {
	if len(candles) == 0 {
		output.Dim("No trades in window")
		return
	}
	var maxVol int64
	for _, c := range candles {
		maxVol = max(maxVol, c.Volume)
	}
	table := NewTable(output, "TIME", "OPEN", "HIGH", "LOW", "CLOSE", "VOL", "")
	for _, c := range candles {
		bar := Bar(c.Volume, maxVol, 20)
		if c.Rising() {
			bar = output.Green(bar)
		} else {
			bar = output.Red(bar)
		}
		table.AddRow(
			FormatTime(c.Time.Time),
			FormatPrice(c.Open),
			FormatQuantity(c.High),
			FormatQuantity(c.Low),
			FormatPrice(c.Close),
			FormatQuantity(c.Volume),
			bar,
		)
	}
	table.Render()
}
