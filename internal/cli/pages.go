package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/portal-go/internal/prompt"
	"github.com/raphaelgruber/portal-go/internal/server"
	"github.com/raphaelgruber/portal-go/internal/service"
)

var (
	forecastDomains   []string
	forecastCountries []string
	forecastModels    []string
	forecastHorizons  []string

	stocksFilter string
	stocksFocus  string

	learnLevel string

	ideasCount int

	chatConversation string

	draftChannel string
	draftPurpose string
)

var forecastCmd = &cobra.Command{
	Use:   "forecast [topic]",
	Short: "Forecast markets",
	Long: `Request a market forecast. Empty selections fall back to the catalog defaults.

Examples:
  portal forecast
  portal forecast "European Energy" --domains Equities,Commodities --horizons "1 month,1 year"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel := prompt.MarketSelection{
			Topic:     firstArg(args),
			Domains:   forecastDomains,
			Countries: forecastCountries,
			Models:    forecastModels,
			Horizons:  forecastHorizons,
		}
		page, err := apiClient.Forecast(context.Background(), sel)
		if err != nil {
			return fmt.Errorf("forecast: %w", err)
		}
		if jsonOut {
			return printJSON(page)
		}
		printForecast(page)
		return nil
	},
}

var stocksCmd = &cobra.Command{
	Use:   "stocks [tickers...]",
	Short: "Analyze stocks",
	Long: `Analyze stocks and apply a filter preset.

Examples:
  portal stocks
  portal stocks msft aapl nvda --filter "Wide Moats"
  portal stocks filter "Low Risk"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := server.StocksRequest{
			StockSelection: prompt.StockSelection{Tickers: args, Focus: stocksFocus},
			Filter:         stocksFilter,
		}
		page, err := apiClient.AnalyzeStocks(context.Background(), req)
		if err != nil {
			return fmt.Errorf("analyze stocks: %w", err)
		}
		if jsonOut {
			return printJSON(page)
		}
		printStocks(page)
		return nil
	},
}

var stocksFilterCmd = &cobra.Command{
	Use:   "filter <preset>",
	Short: "Re-filter the last analysis of this scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := apiClient.FilterStocks(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("filter stocks: %w", err)
		}
		if jsonOut {
			return printJSON(page)
		}
		printStocks(page)
		return nil
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn [subject]",
	Short: "Build a learning path",
	Long: `Build a learning path on a subject.

Examples:
  portal learn
  portal learn "Options trading" --level intermediate`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := apiClient.LearningPath(context.Background(), prompt.LearningSelection{Subject: firstArg(args), Level: learnLevel})
		if err != nil {
			return fmt.Errorf("learning path: %w", err)
		}
		if jsonOut {
			return printJSON(page)
		}
		printLearning(page)
		return nil
	},
}

var ideasCmd = &cobra.Command{
	Use:   "ideas [interest]",
	Short: "Suggest podcast episodes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := apiClient.Ideas(context.Background(), firstArg(args), ideasCount)
		if err != nil {
			return fmt.Errorf("episode ideas: %w", err)
		}
		if jsonOut {
			return printJSON(page)
		}
		printIdeas(page)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Chat with the assistant",
	Long: `Send a chat message. Pass --conversation to continue a conversation.

Examples:
  portal chat "What should I focus on this week?"
  portal chat "And after that?" --conversation 3f9a1c2b7d4e5f60`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.ChatRequest{ConversationID: chatConversation, Message: strings.Join(args, " ")}
		page, err := apiClient.Chat(context.Background(), req)
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		if jsonOut {
			return printJSON(page)
		}
		printChat(page)
		return nil
	},
}

var draftCmd = &cobra.Command{
	Use:   "draft <contact-id> [purpose]",
	Short: "Draft a message to a contact",
	Long: `Draft an email or SMS to a stored contact and save it as an outbound draft.

Examples:
  portal draft 3f9a1c2b7d4e5f60 "the Friday demo"
  portal draft 3f9a1c2b7d4e5f60 --channel sms`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		purpose := draftPurpose
		if len(args) > 1 {
			purpose = args[1]
		}
		req := service.DraftRequest{ContactID: args[0], Channel: draftChannel, Purpose: purpose}
		page, err := apiClient.Draft(context.Background(), req)
		if err != nil {
			return fmt.Errorf("draft: %w", err)
		}
		if jsonOut {
			return printJSON(page)
		}
		printDraft(page)
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <key>",
	Short: "Retry a failed page request",
	Long: `Re-issue the failed request behind an error card, unchanged.

Examples:
  portal retry default/forecast`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func runRetry(cmd *cobra.Command, args []string) error {
	key := args[0]
	var raw json.RawMessage
	if err := apiClient.Retry(context.Background(), key, &raw); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if jsonOut {
		fmt.Fprintln(stdout, string(raw))
		return nil
	}

	page := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		page = key[i+1:]
	}
	var err error
	switch page {
	case service.PageForecast:
		err = printAs(raw, printForecast)
	case service.PageStocks:
		err = printAs(raw, printStocks)
	case service.PageLearning:
		err = printAs(raw, printLearning)
	case service.PageIdeas:
		err = printAs(raw, printIdeas)
	case service.PageChat:
		err = printAs(raw, printChat)
	case service.PageDraft:
		err = printAs(raw, printDraft)
	default:
		fmt.Fprintln(stdout, string(raw))
	}
	return err
}

func printAs[P any](raw json.RawMessage, show func(*P)) error {
	var page P
	if err := json.Unmarshal(raw, &page); err != nil {
		return fmt.Errorf("decode page: %w", err)
	}
	show(&page)
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func init() {
	forecastCmd.Flags().StringSliceVar(&forecastDomains, "domains", nil, "asset domains")
	forecastCmd.Flags().StringSliceVar(&forecastCountries, "countries", nil, "countries")
	forecastCmd.Flags().StringSliceVar(&forecastModels, "models", nil, "forecasting approaches")
	forecastCmd.Flags().StringSliceVar(&forecastHorizons, "horizons", nil, "time horizons")

	stocksCmd.Flags().StringVarP(&stocksFilter, "filter", "f", "", "filter preset (default All)")
	stocksCmd.Flags().StringVar(&stocksFocus, "focus", "", "analysis focus")
	stocksCmd.AddCommand(stocksFilterCmd)

	learnCmd.Flags().StringVar(&learnLevel, "level", "", "beginner, intermediate or advanced")

	ideasCmd.Flags().IntVarP(&ideasCount, "count", "n", 5, "number of ideas")

	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "conversation ID to continue")

	draftCmd.Flags().StringVar(&draftChannel, "channel", "", "email or sms (default by contact)")
	draftCmd.Flags().StringVar(&draftPurpose, "purpose", "", "what the message is about")
}
