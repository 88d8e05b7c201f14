// Package report renders market reports as Markdown, HTML or JSON.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"EMSpark/internal/domain/models"
)

// Output formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
)

var marketBadges = map[models.Market]string{
	models.MarketDAM:  "🟦 DAM",
	models.MarketGDAM: "🟩 GDAM",
	models.MarketRTM:  "🟧 RTM",
}

// Renderer is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{md: goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)}
}

// Render produces the body for format. JSON bodies are the report itself.
func (r *Renderer) Render(rep *models.Report, format string) (string, error) {
	if rep == nil {
		return "", fmt.Errorf("render: nil report")
	}
	switch format {
	case "", FormatMarkdown:
		return Markdown(rep), nil
	case FormatHTML:
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(Markdown(rep)), &buf); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
		return buf.String(), nil
	case FormatJSON:
		b, err := json.Marshal(rep)
		if err != nil {
			return "", fmt.Errorf("render json: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("render: unknown format %q", format)
	}
}

// Markdown composes the dashboard sections that have content.
func Markdown(rep *models.Report) string {
	sections := []string{
		overview(rep),
		snapshot(rep),
		segments(rep),
		derivatives(rep),
		comparison(rep),
		dailyTable(rep),
		rowTable(rep),
	}
	kept := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n") + "\n"
}

func overview(rep *models.Report) string {
	date := rep.DateLabel
	if len(rep.ExclusionLabels) > 0 {
		date += " (excluding " + strings.Join(rep.ExclusionLabels, ", ") + ")"
	}
	return fmt.Sprintf("# Spot Market (%s)\n\n📅 **%s** | ⏰ %s", rep.PrimaryMarket, date, rep.TimeLabel)
}

func snapshot(rep *models.Report) string {
	p := rep.Primary().Current
	share := 0.0
	if rep.TotalVolumeGWh > 0 {
		share = p.VolumeGWh / rep.TotalVolumeGWh * 100
	}
	var b strings.Builder
	fmt.Fprintf(&b, "| Market Clearing Price | %s Volume | Renewable Mix |\n", rep.PrimaryMarket)
	b.WriteString("| :--- | :--- | :--- |\n")
	fmt.Fprintf(&b, "| **₹%.2f** /kWh<br>_%s ₹%.2f-₹%.2f_ | **%.1f GWh**<br>_%.1f%% of Total_ | **%.1f%%**<br>_Green Share_ |",
		p.TWAP, "Range", p.MinPrice, p.MaxPrice, p.VolumeGWh, share, rep.RenewableMixPct)
	if p.RowCount == 0 {
		b.WriteString("\n\n> ⚠️ No cleared data for the selected period.")
	} else if primaryStat(rep) == models.StatVWAP {
		fmt.Fprintf(&b, "\n\nVolume-weighted price: **₹%.3f** /kWh", p.VWAP)
	}
	return b.String()
}

func segments(rep *models.Report) string {
	seg := rep.Primary().Current.Segments
	rows := []struct {
		name string
		s    models.Segment
	}{
		{"☀️ Solar (08:00-18:00)", seg.Solar},
		{"🌆 Peak (18:00-23:00)", seg.Peak},
		{"🌙 Off-Peak", seg.OffPeak},
	}
	var b strings.Builder
	for _, r := range rows {
		if r.s.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "| %s | ₹%.3f | %.2f GWh |\n", r.name, r.s.TWAP, r.s.VolumeGWh)
	}
	if b.Len() == 0 {
		return ""
	}
	return "### ⚡ Time-of-Day Segments\n\n| Segment | Avg Price | Volume |\n| :--- | ---: | ---: |\n" + b.String()
}

func derivatives(rep *models.Report) string {
	if rep.DerivativeDate == nil {
		if len(rep.Specs) > 0 && rep.Specs[0].Start().Before(models.DerivativeMarketStart) {
			return "> ℹ️ **Derivative Market Not Available** (Started July 2025)"
		}
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### 💹 Derivative Market (%s)\n\n", rep.DerivativeDate.Format("02 Jan 2006"))
	b.WriteString("| Exchange | Commodity | Month | Close Price |\n| :--- | :--- | :--- | ---: |\n")
	for _, q := range rep.Derivatives {
		fmt.Fprintf(&b, "| %s | %s | %s | **₹%.2f** |\n", q.Exchange, q.Commodity, q.ContractMonth.Format("Jan 2006"), q.ClosePrice/1000)
	}
	return b.String()
}

func comparison(rep *models.Report) string {
	if len(rep.Markets) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### 📊 Market Comparison (%d vs %d)\n\n", rep.Year, rep.Year-1)
	b.WriteString("| Market | Volume | Price | YoY Δ |\n| :--- | ---: | ---: | ---: |\n")
	for _, m := range rep.Markets {
		badge := marketBadges[m.Market]
		if badge == "" {
			badge = string(m.Market)
		}
		fmt.Fprintf(&b, "| **%s** | %.1f GWh <br> <small>(%.1f)</small> | **₹%.3f** <br> <small>(₹%.3f)</small> | %s |\n",
			badge, m.Current.VolumeGWh, m.Previous.VolumeGWh, m.Current.TWAP, m.Previous.TWAP, yoyChip(m.YoYChange))
	}
	return b.String()
}

func yoyChip(v float64) string {
	if v == 0 || math.IsNaN(v) {
		return "-"
	}
	if v > 0 {
		return fmt.Sprintf(`<span class="em-badge-green">▲ %.1f%%</span>`, v)
	}
	return fmt.Sprintf(`<span class="em-badge-red">▼ %.1f%%</span>`, -v)
}

func dailyTable(rep *models.Report) string {
	if primaryStat(rep) != models.StatDailyAvg {
		return ""
	}
	daily := rep.Primary().Current.Daily
	if len(daily) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("### 📅 Daily Average\n\n| Date | Avg Price |\n| :--- | ---: |\n")
	for _, d := range daily {
		fmt.Fprintf(&b, "| %s | ₹%.3f |\n", d.Date.Format("02 Jan 2006"), d.TWAP)
	}
	return b.String()
}

func rowTable(rep *models.Report) string {
	cur := rep.Primary().Current
	if len(cur.Rows) == 0 {
		return ""
	}
	unit := "Block"
	width := 60
	if cur.Granularity == models.GranularityQuarter {
		unit, width = "Slot", 15
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### 🧾 Price Rows\n\n| Date | %s | Time | Price | MCV (MW) |\n| :--- | ---: | :--- | ---: | ---: |\n", unit)
	for _, r := range cur.Rows {
		fmt.Fprintf(&b, "| %s | %d | %s-%s | ₹%.3f | %.1f |\n",
			r.DeliveryDate, r.Bucket, clock((r.Bucket-1)*width), clock(r.Bucket*width), r.PriceAvg/1000, r.MCVMW)
	}
	if cur.RowCount > len(cur.Rows) {
		fmt.Fprintf(&b, "\n_Showing %d of %d rows._", len(cur.Rows), cur.RowCount)
	}
	return b.String()
}

func primaryStat(rep *models.Report) models.Stat {
	if len(rep.Specs) == 0 {
		return models.StatTWAP
	}
	return rep.Specs[0].Stat()
}
