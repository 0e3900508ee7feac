package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"parnass/internal/domain"
	"parnass/internal/repository"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenant sponsorship settings",
	}
	cmd.AddCommand(newTenantUpsertCmd())
	cmd.AddCommand(newTenantShowCmd())
	return cmd
}

type tenantFlags struct {
	types           []string
	dailyPrice      string
	monthlyPrice    string
	yearlyPrice     string
	currency        string
	timezone        string
	requireApproval bool
	allowMultiple   bool
}

func (f tenantFlags) settings(tenantID string) (*domain.TenantSponsorshipSettings, error) {
	s := &domain.TenantSponsorshipSettings{
		TenantID:              tenantID,
		Currency:              strings.ToUpper(strings.TrimSpace(f.currency)),
		Timezone:              strings.TrimSpace(f.timezone),
		RequireApproval:       f.requireApproval,
		AllowMultipleSponsors: f.allowMultiple,
		UpdatedAt:             time.Now().UTC(),
	}
	if len(s.Currency) != 3 {
		return nil, fmt.Errorf("currency must be a 3 letter code, got %q", f.currency)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return nil, fmt.Errorf("unknown timezone %q", s.Timezone)
		}
	}

	for _, raw := range f.types {
		t, ok := domain.ParseSponsorshipType(raw)
		if !ok {
			return nil, fmt.Errorf("unknown sponsorship type %q", raw)
		}
		switch t {
		case domain.SponsorshipDaily:
			s.DailyEnabled = true
		case domain.SponsorshipMonthly:
			s.MonthlyEnabled = true
		case domain.SponsorshipYearly:
			s.YearlyEnabled = true
		}
	}

	var err error
	if s.DailyPrice, err = parsePrice("daily-price", f.dailyPrice); err != nil {
		return nil, err
	}
	if s.MonthlyPrice, err = parsePrice("monthly-price", f.monthlyPrice); err != nil {
		return nil, err
	}
	if s.YearlyPrice, err = parsePrice("yearly-price", f.yearlyPrice); err != nil {
		return nil, err
	}
	return s, nil
}

func parsePrice(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("--%s must not be negative", name)
	}
	return d.Round(2), nil
}

func newTenantUpsertCmd() *cobra.Command {
	var f tenantFlags

	cmd := &cobra.Command{
		Use:   "upsert <tenant-id>",
		Short: "Create or replace the sponsorship settings of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.settings(args[0])
			if err != nil {
				return err
			}

			a, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer a.close()

			if err := repository.NewSettingsRepository(a.db).Upsert(cmd.Context(), s); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s saved\n", s.TenantID)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&f.types, "types", []string{"daily", "monthly", "yearly"}, "enabled sponsorship types")
	cmd.Flags().StringVar(&f.dailyPrice, "daily-price", "0", "price of a daily sponsorship")
	cmd.Flags().StringVar(&f.monthlyPrice, "monthly-price", "0", "price of a monthly sponsorship")
	cmd.Flags().StringVar(&f.yearlyPrice, "yearly-price", "0", "price of a yearly sponsorship")
	cmd.Flags().StringVar(&f.currency, "currency", "USD", "ISO 4217 currency code")
	cmd.Flags().StringVar(&f.timezone, "timezone", "", "IANA timezone used to bucket dates (default UTC)")
	cmd.Flags().BoolVar(&f.requireApproval, "require-approval", false, "keep paid reservations Pending until an administrator approves")
	cmd.Flags().BoolVar(&f.allowMultiple, "allow-multiple", false, "let several sponsors share one slot")
	return cmd
}

func newTenantShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <tenant-id>",
		Short: "Print the sponsorship settings of a tenant as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := repository.NewSettingsRepository(a.db).Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("tenant %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	}
}
