package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/notify"
	"econsim-terminal/internal/server"
	"econsim-terminal/internal/session"
	"econsim-terminal/internal/stream"
	"econsim-terminal/internal/views"
)

const clearScreen = "\033[H\033[2J"

// renderEvery bounds how often the dashboard redraws under a burst of
// source changes.
const renderEvery = 250 * time.Millisecond

func addWatchCommand(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWatchCmd(app))
}

// Dashboard is one frame of the watch command.
type Dashboard struct {
	At        time.Time            `json:"at"`
	Speed     string               `json:"speed"`
	Company   *models.Company      `json:"company,omitempty"`
	Inventory []views.InventoryRow `json:"inventory,omitempty"`
	MyOrders  []models.MarketOrder `json:"my_orders,omitempty"`
	Good      string               `json:"good,omitempty"`
	Quote     views.Quote          `json:"quote"`
	Book      *models.OrderBook    `json:"book,omitempty"`
	Stats     *models.MarketStats  `json:"stats,omitempty"`
	Trades    []models.Trade       `json:"trades"`
	Candles   []models.Candle      `json:"candles,omitempty"`
	Warning   string               `json:"warning,omitempty"`
	Error     *session.ErrorEntry  `json:"error,omitempty"`

	Notifications []notify.Notification `json:"notifications,omitempty"`

	goods     []models.Good
	companies []models.Company
}

func buildDashboard(sess *session.Session, tradeLimit int) Dashboard {
	d := Dashboard{
		At:        time.Now(),
		Quote:     sess.Quote(),
		goods:     sess.Goods.Value(),
		companies: sess.Companies.Value(),
	}
	if speed, ok := sess.Speed.Snapshot(); ok {
		d.Speed = FormatSpeed(speed.Multiplier)
	}
	if c, ok := sess.SelectedCompany(); ok {
		d.Company = &c
		rows, err := sess.InventoryRows()
		var consistency *apperrors.ConsistencyError
		if apperrors.As(err, &consistency) {
			d.Warning = consistency.Error()
		}
		d.Inventory = rows
		d.MyOrders = sess.MyOrders()
	}
	if id, ok := sess.MarketGood.Get(); ok {
		d.Good, _ = views.GoodName(d.goods, id)
		if book, ok := sess.Depth.Snapshot(); ok {
			d.Book = &book
		}
		if stats, ok := sess.Stats.Snapshot(); ok {
			d.Stats = &stats
		}
	}
	if _, ok := sess.ChartGood.Get(); ok {
		d.Candles = sess.Candles.Value()
	}

	d.Trades = append([]models.Trade(nil), sess.Trades.Value()...)
	sort.SliceStable(d.Trades, func(i, j int) bool { return d.Trades[i].ID > d.Trades[j].ID })
	if len(d.Trades) > tradeLimit {
		d.Trades = d.Trades[:tradeLimit]
	}
	if e, ok := sess.Errors.Get(); ok {
		d.Error = &e
	}
	return d
}

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of the market, inventory and trades",
		Long: `Show a live dashboard that redraws whenever any data changes.

Orders, depth, statistics and trades refresh on their own cadence. With
--listen (or server.listen in the config) a status server exposes /health,
/metrics and a JSON API including a server-sent event stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			company, err := app.optionalCompany(cmd)
			if err != nil {
				return err
			}
			good, err := app.optionalGood(cmd, "good")
			if err != nil {
				return err
			}
			chartGood, err := app.optionalGood(cmd, "chart-good")
			if err != nil {
				return err
			}
			if chartGood == nil {
				chartGood = good
			}
			listen, _ := cmd.Flags().GetString("listen")
			if listen == "" {
				listen = app.Config.Server.Listen
			}
			once, _ := cmd.Flags().GetBool("once")
			tradeLimit, _ := cmd.Flags().GetInt("trades")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := stream.NewHub()
			hub.Start(ctx)
			defer hub.Stop()

			sess, err := app.openSession(ctx, selections{company: company, good: good, chartGood: chartGood})
			if sess == nil {
				return err
			}
			defer sess.Close()
			if err != nil {
				app.Logger.Warn().Err(err).Msg("Some data failed to load")
			}
			sess.OnSourceChange(hub.Publish)

			if once {
				return renderDashboard(output, buildDashboard(sess, tradeLimit), false)
			}

			notifier := watchNotifications(ctx, output, sess, hub, company)

			changes := hub.SubscribeWithID(stream.AllTopics, "watch")
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return watchLoop(gctx, output, sess, notifier, changes, tradeLimit)
			})
			if listen != "" {
				srv := server.New(sess, hub, app.Logger)
				g.Go(func() error {
					return srv.ListenAndServe(gctx, listen)
				})
			}
			err = g.Wait()
			if apperrors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().String("company", "", "company to follow (id or name)")
	cmd.Flags().String("good", "", "market good to follow (id or name)")
	cmd.Flags().String("chart-good", "", "good for the candle chart (defaults to --good)")
	cmd.Flags().String("listen", "", "status server address, e.g. :8090")
	cmd.Flags().Int("trades", 10, "number of recent trades shown")
	cmd.Flags().Bool("once", false, "render a single frame and exit")
	return cmd
}

// notificationsTopic is published on the hub when a notification lands.
const notificationsTopic = "notifications"

// watchNotifications raises notifications for fills of the followed
// company and for every new failure in the error slot.
func watchNotifications(ctx context.Context, output *Output, sess *session.Session, hub *stream.Hub, company *int64) *notify.Notifier {
	var bell io.Writer
	if output.colorEnabled {
		bell = output.writer
	}
	notifier := notify.New(50, 5, bell)
	notifier.AddHandler(func(notify.Notification) { hub.Publish(notificationsTopic) })
	notifier.Start(ctx)

	if company != nil {
		tracker := notify.NewFillTracker(*company, func(id int64) string {
			if name, ok := views.GoodName(sess.Goods.Value(), id); ok {
				return name
			}
			return "#" + idString(id)
		})
		tracker.Observe(sess.Trades.Value())
		sess.Trades.Subscribe(func(_ context.Context, trades []models.Trade) {
			for _, n := range tracker.Observe(trades) {
				notifier.Notify(n)
			}
		})
	}
	sess.Errors.OnChange(func() {
		if e, ok := sess.Errors.Get(); ok {
			notifier.Notify(notify.Notification{
				Type:     notify.TypeError,
				Message:  e.Source + ": " + e.Message,
				Priority: 1,
			})
		}
	})
	return notifier
}

// watchLoop redraws at most once per renderEvery while changes arrive.
func watchLoop(ctx context.Context, output *Output, sess *session.Session, notifier *notify.Notifier, changes <-chan stream.Event, tradeLimit int) error {
	ticker := time.NewTicker(renderEvery)
	defer ticker.Stop()

	dirty := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			d := buildDashboard(sess, tradeLimit)
			d.Notifications = notifier.Recent()
			if err := renderDashboard(output, d, true); err != nil {
				return err
			}
		}
	}
}

func renderDashboard(output *Output, d Dashboard, live bool) error {
	if output.IsJSON() {
		return output.JSON(d)
	}
	if live && output.colorEnabled {
		output.Printf("%s", clearScreen)
	}

	header := "econsim  " + FormatTime(d.At)
	if d.Speed != "" {
		header += "  speed " + d.Speed
	}
	output.Bold("%s", header)
	output.Println()

	if d.Company != nil {
		output.Info("%s  %s", d.Company.Name, FormatCash(d.Company.Cash))
		if d.Warning != "" {
			output.Warning("Inconsistent snapshot: %s", d.Warning)
		}
		renderInventoryRows(output, d.Inventory)
		output.Println()
		output.Info("My orders")
		renderOrders(output, d.MyOrders, &d.Company.ID, true)
		output.Println()
	}

	if d.Good != "" {
		output.Info("%s", d.Good)
		if d.Stats != nil {
			output.Printf("  Last %s\n", FormatPrice(d.Stats.LastPrice))
		}
		renderQuote(output, d.Quote)
		if d.Book != nil {
			renderBook(output, *d.Book)
		}
		output.Println()
	}

	if len(d.Candles) > 0 {
		output.Info("Candles")
		renderCandles(output, d.Candles)
		output.Println()
	}

	if len(d.Notifications) > 0 {
		output.Info("Notifications")
		for _, n := range d.Notifications {
			line := FormatTime(n.Timestamp) + "  " + n.Message
			switch n.Type {
			case notify.TypeError:
				line = output.Red(line)
			case notify.TypeFill:
				line = output.Yellow(line)
			default:
				line = output.Blue(line)
			}
			output.Println(line)
		}
		output.Println()
	}

	output.Info("Recent trades")
	renderTrades(output, d.Trades, d.goods, d.companies)

	if d.Error != nil {
		output.Println()
		output.Error("%s: %s", d.Error.Source, d.Error.Message)
	}
	return nil
}
