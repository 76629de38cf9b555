package powerwall

import (
	"math"
	"sort"
	"time"
)

// DefaultKWPrecision is the number of decimals kW/kWh values are rounded to
const DefaultKWPrecision = 1

// ConvertToKW converts a W or Wh value to kW or kWh rounded to precision decimals
func ConvertToKW(value float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	return math.Round(value/1000*scale) / scale
}

// MetersAggregates is the response of /api/meters/aggregates, keyed by meter type
type MetersAggregates struct{ response }

// Meter returns the reading for one meter type
func (m *MetersAggregates) Meter(t MeterType) (*Meter, error) {
	obj, err := RequireMap(m.raw, string(t), m.category)
	if err != nil {
		return nil, err
	}
	return &Meter{response: response{raw: obj, category: m.category + "." + string(t)}, Type: t}, nil
}

func (m *MetersAggregates) Site() (*Meter, error)    { return m.Meter(MeterTypeSite) }
func (m *MetersAggregates) Solar() (*Meter, error)   { return m.Meter(MeterTypeSolar) }
func (m *MetersAggregates) Battery() (*Meter, error) { return m.Meter(MeterTypeBattery) }
func (m *MetersAggregates) Load() (*Meter, error)    { return m.Meter(MeterTypeLoad) }

// Meters returns every meter in the response, ordered by type name.
// An unknown meter type fails the whole call.
func (m *MetersAggregates) Meters() ([]*Meter, error) {
	keys := make([]string, 0, len(m.raw))
	for k := range m.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	meters := make([]*Meter, 0, len(keys))
	for _, k := range keys {
		t, err := ParseMeterType(k)
		if err != nil {
			return nil, err
		}
		meter, err := m.Meter(t)
		if err != nil {
			return nil, err
		}
		meters = append(meters, meter)
	}
	return meters, nil
}

// Meter is a single meter reading. Raw values are in W and Wh.
type Meter struct {
	response
	Type MeterType
}

func (m *Meter) InstantPower() (float64, error)          { return m.float("instant_power") }
func (m *Meter) InstantReactivePower() (float64, error)  { return m.float("instant_reactive_power") }
func (m *Meter) InstantApparentPower() (float64, error)  { return m.float("instant_apparent_power") }
func (m *Meter) Frequency() (float64, error)             { return m.float("frequency") }
func (m *Meter) RawEnergyExported() (float64, error)     { return m.float("energy_exported") }
func (m *Meter) RawEnergyImported() (float64, error)     { return m.float("energy_imported") }
func (m *Meter) InstantAverageVoltage() (float64, error) { return m.float("instant_average_voltage") }
func (m *Meter) InstantTotalCurrent() (float64, error)   { return m.float("instant_total_current") }
func (m *Meter) PhaseACurrent() (float64, error)         { return m.float("i_a_current") }
func (m *Meter) PhaseBCurrent() (float64, error)         { return m.float("i_b_current") }
func (m *Meter) PhaseCCurrent() (float64, error)         { return m.float("i_c_current") }

// LastCommunicationTime returns when the meter last reported
func (m *Meter) LastCommunicationTime() (time.Time, error) {
	return m.time("last_communication_time", time.RFC3339Nano)
}

// Power returns the instant power in kW
func (m *Meter) Power(precision int) (float64, error) {
	p, err := m.InstantPower()
	if err != nil {
		return 0, err
	}
	return ConvertToKW(p, precision), nil
}

// EnergyExported returns the exported energy in kWh
func (m *Meter) EnergyExported(precision int) (float64, error) {
	e, err := m.RawEnergyExported()
	if err != nil {
		return 0, err
	}
	return ConvertToKW(e, precision), nil
}

// EnergyImported returns the imported energy in kWh
func (m *Meter) EnergyImported(precision int) (float64, error) {
	e, err := m.RawEnergyImported()
	if err != nil {
		return 0, err
	}
	return ConvertToKW(e, precision), nil
}

// IsActive reports whether power flows through the meter at the given precision
func (m *Meter) IsActive(precision int) (bool, error) {
	p, err := m.Power(precision)
	if err != nil {
		return false, err
	}
	return p != 0, nil
}

// IsDrawingFrom reports whether the site draws power from this source.
// Power cannot be drawn from the load.
func (m *Meter) IsDrawingFrom(precision int) (bool, error) {
	if m.Type == MeterTypeLoad {
		return false, nil
	}
	p, err := m.Power(precision)
	if err != nil {
		return false, err
	}
	return p > 0, nil
}

// IsSendingTo reports whether the site sends power to this sink.
// Load power is always positive.
func (m *Meter) IsSendingTo(precision int) (bool, error) {
	p, err := m.Power(precision)
	if err != nil {
		return false, err
	}
	if m.Type == MeterTypeLoad {
		return p > 0, nil
	}
	return p < 0, nil
}
