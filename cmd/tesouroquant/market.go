package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medicech/tesouro-quant/internal/portfolio"
	"github.com/medicech/tesouro-quant/internal/termstructure"
	"github.com/medicech/tesouro-quant/pkg/models"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// --- Bonds Command ---

var bondsCmd = &cobra.Command{
	Use:   "bonds",
	Short: "List the bond catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, err := filterFlags(cmd)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		bonds := models.FilterBonds(snap.Bonds, keep)

		fmt.Printf("📋 %d títulos — base %s (%s)\n\n", len(bonds), utils.FormatDateBR(snap.BaseDate), snap.Source)
		fmt.Printf("  %-22s %-42s %-11s %10s %10s %14s\n", "ID", "Título", "Vencimento", "Compra", "Venda", "PU Compra")
		fmt.Println("  " + rule(114))
		for _, b := range bonds {
			fmt.Printf("  %-22s %-42s %-11s %10s %10s %14s\n",
				b.ID, truncate(b.TitleName, 42), utils.FormatDateBR(b.MaturityDate),
				orNA(b.BuyRate, utils.FormatPct), orNA(b.SellRate, utils.FormatPct),
				orNA(b.BuyPrice, utils.FormatBRL))
		}
		return nil
	},
}

// --- Risk Command ---

var riskCmd = &cobra.Command{
	Use:   "risk [bond-id]",
	Short: "Show duration, DV01 and +100bps impact per bond",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := modeFlag(cmd.Flags())
		if err != nil {
			return err
		}
		keep, err := filterFlags(cmd)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		bonds := models.FilterBonds(snap.Bonds, keep)
		if len(args) == 1 {
			b, err := snap.Find(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			bonds = []models.Bond{b}
		}

		fmt.Printf("📉 Risco (%s) — base %s\n\n", mode, utils.FormatDateBR(snap.BaseDate))
		fmt.Printf("  %-22s %10s %9s %9s %10s %14s %9s\n", "ID", "Taxa", "D.Mac", "D.Mod", "DV01", "+100bps", "+100bps%")
		fmt.Println("  " + rule(90))
		for _, m := range newEngine().Metrics(bonds, mode) {
			fmt.Printf("  %-22s %10s %9s %9s %10s %14s %9s\n",
				m.BondID, orNA(m.RatePct, utils.FormatPct),
				orNA(m.MacaulayDuration, fixed(2)), orNA(m.ModifiedDuration, fixed(2)),
				orNA(m.DV01, fixed(4)), orNA(m.Impact100Bps, utils.FormatBRL),
				orNA(m.Impact100BpsPct, utils.FormatPct))
		}
		return nil
	},
}

// --- Curve Command ---

var curveCmd = &cobra.Command{
	Use:   "curve",
	Short: "Build a term structure and classify its shape",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := modeFlag(cmd.Flags())
		if err != nil {
			return err
		}
		rawIndex, _ := cmd.Flags().GetString("index")
		index, err := models.ParseIndexType(rawIndex)
		if err != nil {
			return err
		}
		every, _ := cmd.Flags().GetFloat64("every")

		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		ts := termstructure.Build(termstructure.CurveBonds(snap.Bonds, index), mode, curveOptions()...)

		fmt.Printf("📈 Curva %s (%s) — base %s\n\n", index, mode, utils.FormatDateBR(snap.BaseDate))
		fmt.Println("  Vértices:")
		for _, v := range ts.Vertices {
			fmt.Printf("    %6.2f anos  %s\n", v.TenorYears, utils.FormatRate(v.Rate))
		}

		diag, err := termstructure.Diagnose(ts, cfg.Curve.MinVertices)
		if err != nil {
			fmt.Printf("\n  ⚠️  %v\n", err)
			return nil
		}
		fmt.Println("\n  Curva interpolada:")
		last := -every
		for _, p := range ts.Curve {
			if !p.Rate.Valid() || float64(p.TenorYears)-last < every-1e-9 {
				continue
			}
			last = p.TenorYears
			fmt.Printf("    %6.2f anos  %s\n", p.TenorYears, utils.FormatRate(float64(p.Rate)))
		}
		fmt.Printf("\n  Curta: %s (%.2f anos)  Longa: %s (%.2f anos)\n",
			utils.FormatRate(diag.ShortRate), diag.ShortTenor, utils.FormatRate(diag.LongRate), diag.LongTenor)
		fmt.Printf("  Inclinação: %+.0f bps — %s\n", diag.SlopeBps, diag.Shape)
		return nil
	},
}

// --- Breakeven Command ---

var breakevenCmd = &cobra.Command{
	Use:   "breakeven",
	Short: "Show the implied inflation between the nominal and real curves",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := modeFlag(cmd.Flags())
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		points, mean, err := termstructure.BreakevenCurve(snap.Bonds, mode, curveOptions()...)
		if err != nil {
			return err
		}

		fmt.Printf("🎯 Inflação implícita (%s) — base %s\n\n", mode, utils.FormatDateBR(snap.BaseDate))
		fmt.Printf("  %8s %12s %12s %12s\n", "Prazo", "Nominal", "Real", "Implícita")
		fmt.Println("  " + rule(47))
		for _, p := range points {
			if p.TenorYears != float64(int(p.TenorYears)) {
				continue
			}
			fmt.Printf("  %6.0f a %12s %12s %12s\n", p.TenorYears,
				utils.FormatPct(p.Nominal), utils.FormatPct(p.Real), utils.FormatPct(p.Inflation))
		}
		fmt.Printf("\n  Média: %s\n", utils.FormatRate(mean))
		return nil
	},
}

// --- Stress Command ---

var stressCmd = &cobra.Command{
	Use:   "stress ID=QTY [ID=QTY...]",
	Short: "Value a portfolio and run the rate-shock scenarios",
	Example: `  tesouroquant stress PRE_STD_2031=3 IPCA_JS_2035=1.5
  tesouroquant stress PRE_STD_2031=3 --shock 150`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := modeFlag(cmd.Flags())
		if err != nil {
			return err
		}
		positions, err := parsePositions(args)
		if err != nil {
			return err
		}
		shock, err := shockFlag(cmd)
		if err != nil {
			return err
		}

		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		summary, err := portfolio.NewAnalyzer(newEngine(), cfg.Portfolio).Summary(snap.Bonds, positions, mode)
		if err != nil {
			return err
		}

		fmt.Printf("💼 Carteira (%s) — base %s\n\n", mode, utils.FormatDateBR(snap.BaseDate))
		for _, h := range summary.Holdings {
			fmt.Printf("  %-22s %8.2f un  %16s  D.Mod %s\n", h.BondID, h.Quantity,
				utils.FormatBRL(h.Value), orNA(h.Metrics.ModifiedDuration, fixed(2)))
		}
		fmt.Printf("\n  Valor total:    %s\n", summary.TotalValueText)
		fmt.Printf("  Duration média: %s anos\n", orNA(summary.WeightedDuration, fixed(2)))
		if summary.RiskLevel != "" {
			fmt.Printf("  Risco:          %s\n", summary.RiskLevel)
		}
		if len(summary.Skipped) > 0 {
			fmt.Printf("  Sem duration:   %s\n", strings.Join(summary.Skipped, ", "))
		}

		results := portfolio.StressAll(summary)
		if shock != 0 {
			results = append(results, portfolio.Stress(summary, "", shock))
		}
		fmt.Println("\n  Cenários:")
		for _, r := range results {
			fmt.Printf("    %-42s %16s (%s)  → %s\n", r.Scenario, r.ImpactText,
				orNA(r.ImpactPct, utils.FormatPct), r.ProjectedText)
		}
		return nil
	},
}

// shockFlag reads --shock, rejecting NaN and infinities.
func shockFlag(cmd *cobra.Command) (float64, error) {
	shock, err := cmd.Flags().GetFloat64("shock")
	if err != nil {
		return 0, err
	}
	if math.IsNaN(shock) || math.IsInf(shock, 0) {
		return 0, fmt.Errorf("invalid --shock %v: must be a finite number of basis points", shock)
	}
	return shock, nil
}

func init() {
	for _, c := range []*cobra.Command{bondsCmd, riskCmd} {
		c.Flags().String("index", "", "filter by index: PREFIXADO, IPCA, SELIC, OTHER")
		c.Flags().String("coupon", "", "filter by coupon: WITH_COUPON, NO_COUPON")
	}
	curveCmd.Flags().String("index", "PREFIXADO", "curve index: PREFIXADO or IPCA")
	curveCmd.Flags().Float64("every", 1, "print the interpolated curve every N years")
	stressCmd.Flags().Float64("shock", 0, "extra custom parallel shock in basis points")
}

func filterFlags(cmd *cobra.Command) (func(models.Bond) bool, error) {
	var (
		index  models.IndexType
		coupon models.CouponFlag
		err    error
	)
	if raw, _ := cmd.Flags().GetString("index"); raw != "" {
		if index, err = models.ParseIndexType(raw); err != nil {
			return nil, err
		}
	}
	if raw, _ := cmd.Flags().GetString("coupon"); raw != "" {
		if coupon, err = models.ParseCouponFlag(raw); err != nil {
			return nil, err
		}
	}
	return func(b models.Bond) bool {
		return (index == "" || b.IndexType == index) && (coupon == "" || b.Coupon == coupon)
	}, nil
}

// parsePositions reads "ID=QTY" or "ID=QTY@PRICE" arguments.
func parsePositions(args []string) ([]models.Position, error) {
	positions := make([]models.Position, 0, len(args))
	for _, arg := range args {
		id, rest, ok := strings.Cut(arg, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid position %q: want ID=QTY", arg)
		}
		qtyRaw, priceRaw, hasPrice := strings.Cut(rest, "@")
		qty, err := strconv.ParseFloat(qtyRaw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q: %w", arg, err)
		}
		p := models.Position{BondID: id, Quantity: qty}
		if hasPrice {
			if p.UnitPrice, err = strconv.ParseFloat(priceRaw, 64); err != nil {
				return nil, fmt.Errorf("invalid price in %q: %w", arg, err)
			}
		}
		positions = append(positions, p)
	}
	return positions, nil
}
