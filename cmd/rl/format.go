package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"reelline/internal/config"
)

// moneyFormat renders amounts in the configured currency and locale.
type moneyFormat struct {
	printer *message.Printer
	unit    currency.Unit
	ok      bool
}

func newMoneyFormat(cfg *config.Config) moneyFormat {
	tag := language.English
	if t, err := language.Parse(cfg.Finance.Locale); err == nil {
		tag = t
	}
	f := moneyFormat{printer: message.NewPrinter(tag)}
	if u, err := currency.ParseISO(strings.ToUpper(cfg.Finance.Currency)); err == nil {
		f.unit, f.ok = u, true
	}
	return f
}

func (f moneyFormat) format(d decimal.Decimal) string {
	v := d.Round(2).InexactFloat64()
	if !f.ok {
		return f.printer.Sprintf("%.2f", v)
	}
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(v)))
}

func (f moneyFormat) percent(n int) string {
	return f.printer.Sprintf("%d%%", n)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func partialNote(partial bool, unavailable []string) string {
	if !partial {
		return ""
	}
	return fmt.Sprintf("partial result: unavailable %s", strings.Join(unavailable, ", "))
}
