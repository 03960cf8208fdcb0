package services

import (
	"fmt"

	"market-monitor/models"
)

// TableFromListings projects rows onto cols. Price columns carry the
// currency format; nothing is filtered or reordered.
func TableFromListings(title string, rows []models.Listing, cols []models.Column) models.Table {
	t := models.Table{
		Title:   title,
		Columns: make([]models.TableColumn, len(cols)),
		Rows:    make([]map[string]any, len(rows)),
	}
	for i, c := range cols {
		tc := models.TableColumn{ID: string(c), Name: string(c), Type: "text"}
		if c.IsNumeric() {
			tc.Type = "numeric"
		}
		if c.IsCurrency() {
			f := models.DefaultCurrencyFormat
			tc.Format = &f
		}
		t.Columns[i] = tc
	}
	for i, l := range rows {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			row[string(c)] = l.Value(c)
		}
		t.Rows[i] = row
	}
	if len(rows) == 0 {
		t.Warning = models.NoDataWarning
	}
	return t
}

func newSeries(title, xLabel, yLabel string, n int) models.Series {
	return models.Series{
		Title:  title,
		XLabel: xLabel,
		YLabel: yLabel,
		X:      make([]any, 0, n),
		Y:      make([]float64, 0, n),
		Color:  make([]string, 0, n),
	}
}

func finish(s models.Series) models.Series {
	if s.Len() == 0 {
		s.Warning = models.NoDataWarning
	}
	return s
}

// SalesTrendSeries shapes the monthly trend as a bar series.
func SalesTrendSeries(trend []models.MonthlyTotal) models.Series {
	s := newSeries("Monthly Sales Value", "Month", "Values", len(trend))
	for _, m := range trend {
		s.X = append(s.X, m.Label)
		s.Y = append(s.Y, m.Total)
		s.Color = append(s.Color, "")
	}
	return finish(s)
}

// HistogramSeries shapes histogram bins as a bar series, one bar per bin
// and group, with the bin edges in the hover fields.
func HistogramSeries(bins []models.HistogramBin) models.Series {
	s := newSeries("Price distribution", "price", "count", len(bins))
	s.Hover = map[string][]any{
		"lower": make([]any, 0, len(bins)),
		"upper": make([]any, 0, len(bins)),
	}
	for _, b := range bins {
		s.X = append(s.X, fmt.Sprintf("%.0f-%.0f", b.Lower, b.Upper))
		s.Y = append(s.Y, float64(b.Count))
		s.Color = append(s.Color, b.Group)
		s.Hover["lower"] = append(s.Hover["lower"], b.Lower)
		s.Hover["upper"] = append(s.Hover["upper"], b.Upper)
	}
	return finish(s)
}

// StatSeries shapes statistics rows as month against metric, colored by
// region name. withPriceHover adds the median listing price to each point.
func StatSeries(title, yLabel string, rows []models.MarketStat, metric models.Metric, withPriceHover bool) models.Series {
	s := newSeries(title, "Date", yLabel, len(rows))
	if withPriceHover {
		s.Hover = map[string][]any{string(models.MetricMedianListingPrice): make([]any, 0, len(rows))}
	}
	for _, r := range rows {
		s.X = append(s.X, r.MonthDate.Format(models.DateLayout))
		s.Y = append(s.Y, r.Value(metric))
		s.Color = append(s.Color, r.ZipName)
		if withPriceHover {
			key := string(models.MetricMedianListingPrice)
			s.Hover[key] = append(s.Hover[key], r.MedianListingPrice)
		}
	}
	return finish(s)
}

// CurrentListingsSeries shapes listings as house size against price,
// colored by zip code, with the detail link in the hover fields.
func CurrentListingsSeries(rows []models.Listing) models.Series {
	s := newSeries("Current listings", "House size", "Price", len(rows))
	s.Hover = map[string][]any{
		string(models.ColLink):   make([]any, 0, len(rows)),
		string(models.ColStreet): make([]any, 0, len(rows)),
	}
	for _, l := range rows {
		s.X = append(s.X, l.HouseSize)
		s.Y = append(s.Y, l.Price)
		s.Color = append(s.Color, l.ZipCode)
		s.Hover[string(models.ColLink)] = append(s.Hover[string(models.ColLink)], l.Link)
		s.Hover[string(models.ColStreet)] = append(s.Hover[string(models.ColStreet)], l.Street)
	}
	return finish(s)
}
