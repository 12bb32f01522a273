package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/quote"
)

// newPriceCmd creates the price subcommand.
func newPriceCmd() *cobra.Command {
	var (
		region      string
		downPayment float64
		months      int
		rate        float64
		addons      []string
	)

	cmd := &cobra.Command{
		Use:   "price <variant>",
		Short: "Compute the cash or financed price of a variant",
		Example: `  sales-engine-cli price "xpander gls"
  sales-engine-cli price "vios xle" --region CEBU --down 20 --months 60
  sales-engine-cli price "montero" --addon "Tint=5000" --addon "Dashcam=8500"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			req := pricing.Request{Region: region}
			for _, raw := range addons {
				a, err := parseAddon(raw)
				if err != nil {
					return err
				}
				req.Addons = append(req.Addons, a)
			}
			if months > 0 {
				req.Financing = &pricing.Financing{
					DownPaymentPercent: decimal.NewFromFloat(downPayment),
					Months:             months,
				}
				if cmd.Flags().Changed("rate") {
					r := decimal.NewFromFloat(rate)
					req.Financing.AnnualRate = &r
				}
			}

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			query := strings.Join(args, " ")
			variant, err := app.Resolver.ResolveVariant(ctx, query)
			if err != nil {
				return fmt.Errorf("resolve variant: %w", err)
			}
			if variant == nil {
				return fmt.Errorf("no variant matches %q", query)
			}
			req.VariantID = variant.ID

			breakdown, err := app.Calculator.Calculate(ctx, req)
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(breakdown)
			}
			fmt.Fprintln(os.Stdout, quote.FormatBreakdown(breakdown, cfg.Pricing.CurrencySymbol))
			return nil
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "", "pricing region (default from config)")
	cmd.Flags().Float64Var(&downPayment, "down", 20, "down payment percent when financing")
	cmd.Flags().IntVar(&months, "months", 0, "financing term in months; 0 prices cash only")
	cmd.Flags().Float64Var(&rate, "rate", 0, "annual interest rate percent (default from config)")
	cmd.Flags().StringArrayVar(&addons, "addon", nil, "add-on as name=price, repeatable")
	return cmd
}

// parseAddon parses "name=price".
func parseAddon(raw string) (pricing.Addon, error) {
	name, price, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return pricing.Addon{}, fmt.Errorf("add-on %q must be name=price", raw)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(price, ",", "")))
	if err != nil {
		return pricing.Addon{}, fmt.Errorf("add-on %q price: %w", raw, err)
	}
	return pricing.Addon{Name: name, Price: amount}, nil
}
