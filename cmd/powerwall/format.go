package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/heathw/tesla-powerwall/internal/ui"
	"github.com/heathw/tesla-powerwall/pkg/powerwall"
)

// report is the output of one read command in both output formats
type report struct {
	title   string
	details []ui.Detail
	data    map[string]any
}

func newReport(title string) *report {
	return &report{title: title, data: map[string]any{}}
}

// add records a field for both formats. A field whose accessor failed shows
// as "-" and is omitted from JSON, so one missing attribute does not hide
// the rest of the response.
func (r *report) add(key, jsonKey string, value any, err error) *report {
	if err != nil {
		r.details = append(r.details, ui.Detail{Key: key, Value: "-"})
		return r
	}
	r.details = append(r.details, ui.Detail{Key: key, Value: display(value)})
	r.data[jsonKey] = value
	return r
}

// print renders the report in the selected output format
func (r *report) print(cmd *cobra.Command, s *session) error {
	p := newPrinter(cmd)
	if outputFormat() == formatJSON {
		return p.PrintJSON(r.data)
	}
	p.PrintHeader(r.title, cmd.CommandPath(), ui.Detail{Key: "Gateway", Value: s.conn.label()})
	p.PrintSuccess(r.title, r.details...)
	return nil
}

func display(v any) string {
	switch v := v.(type) {
	case string:
		if v == "" {
			return "-"
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		return formatFloat(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case time.Duration:
		return v.Round(time.Second).String()
	case []string:
		if len(v) == 0 {
			return "-"
		}
		return strings.Join(v, ", ")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat drops trailing zeros, 87.50 -> 87.5, 20.0 -> 20
func formatFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func percent(f float64) string {
	return formatFloat(f) + "%"
}

// meterReport summarises one meter with values converted to kW and kWh
func meterReport(m *powerwall.Meter, precision int) (ui.Detail, map[string]any) {
	entry := map[string]any{}
	var parts []string

	if p, err := m.Power(precision); err == nil {
		entry["power_kw"] = p
		parts = append(parts, formatFloat(p)+" kW")
	}
	if v, err := m.EnergyImported(precision); err == nil {
		entry["energy_imported_kwh"] = v
		parts = append(parts, "in "+formatFloat(v)+" kWh")
	}
	if v, err := m.EnergyExported(precision); err == nil {
		entry["energy_exported_kwh"] = v
		parts = append(parts, "out "+formatFloat(v)+" kWh")
	}
	if active, err := m.IsActive(precision); err == nil {
		entry["active"] = active
	}
	if drawing, err := m.IsDrawingFrom(precision); err == nil {
		entry["drawing_from"] = drawing
		if drawing {
			parts = append(parts, "drawing from")
		}
	}
	if sending, err := m.IsSendingTo(precision); err == nil {
		entry["sending_to"] = sending
		if sending {
			parts = append(parts, "sending to")
		}
	}

	value := "-"
	if len(parts) > 0 {
		value = strings.Join(parts, ", ")
	}
	return ui.Detail{Key: meterTitle(m.Type), Value: value}, entry
}

func meterTitle(t powerwall.MeterType) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
