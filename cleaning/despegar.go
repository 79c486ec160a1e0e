package cleaning

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// Despegar cleans flight-fare exports from despegar.com.
type Despegar struct {
	StopoverColumn   string
	PriceColumn      string
	TaxColumn        string
	FinalPriceColumn string
	BoolColumns      []string
	// Prices below this are quoted in thousands and get scaled by 1000.
	MinPrice int64
}

// DefaultDespegar uses the export's Spanish column names.
func DefaultDespegar() *Despegar {
	return &Despegar{
		StopoverColumn:   "Escalas",
		PriceColumn:      "Precio",
		TaxColumn:        "Impuesto",
		FinalPriceColumn: "Precio Final",
		BoolColumns: []string{
			"Mochila o cartera",
			"Equipaje de mano",
			"Equipaje para documentar",
			"Cancelacion 1",
			"Cambios 1",
			"Cancelacion 2",
			"Cambios 2",
		},
		MinPrice: 10,
	}
}

func (d *Despegar) Name() string { return "despegar" }

func (d *Despegar) Apply(f *Frame, rep *Report) error {
	cols, err := f.require(d.StopoverColumn, d.PriceColumn, d.TaxColumn, d.FinalPriceColumn)
	if err != nil {
		return err
	}
	stop, price, tax, final := cols[0], cols[1], cols[2], cols[3]
	bools, err := f.require(d.BoolColumns...)
	if err != nil {
		return err
	}

	if err := (Generic{}).Apply(f, rep); err != nil {
		return err
	}

	slog.Info("dropping rows without price")
	rep.drop("no_price", f.filter(func(r []string) bool {
		return r[price] != NullValue
	}))

	slog.Info("clamping stopovers", slog.Int("from", 3), slog.Int("to", 2))
	f.mapColumns([]int{stop}, func(v string) string {
		if n, err := parseNumber(v); err == nil && n == 3 {
			return "2"
		}
		return v
	})

	slog.Info("fixing prices")
	for i, r := range f.rows {
		p, err := parseInt(stripThousands(r[price]))
		if err != nil {
			return &CellError{Row: i + 1, Column: d.PriceColumn, Value: r[price], Err: err}
		}
		t, err := parseInt(r[tax])
		if err != nil {
			return &CellError{Row: i + 1, Column: d.TaxColumn, Value: r[tax], Err: err}
		}
		if p < d.MinPrice {
			p *= 1000
		}
		r[price] = strconv.FormatInt(p, 10)
		r[tax] = strconv.FormatInt(t, 10)
		r[final] = strconv.FormatInt(p+t, 10)
	}

	f.mapColumns(bools, func(v string) string {
		b, ok := ParseBool(v)
		if !ok {
			return v
		}
		if b {
			return "VERDADERO"
		}
		return "FALSO"
	})
	return nil
}

// stripThousands turns "1.5" into "1500" and "12.345" into "12345": the part
// after the first period is right-padded to three digits.
func stripThousands(v string) string {
	head, tail, ok := strings.Cut(strings.TrimSpace(v), ".")
	if !ok {
		return v
	}
	tail, _, _ = strings.Cut(tail, ".")
	for len(tail) < 3 {
		tail += "0"
	}
	return head + tail
}

// parseNumber reads a decimal with either ',' or '.' as the separator.
func parseNumber(v string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", "."), 64)
}

func parseInt(v string) (int64, error) {
	n, err := parseNumber(v)
	if err != nil {
		return 0, err
	}
	return int64(math.Trunc(n)), nil
}
