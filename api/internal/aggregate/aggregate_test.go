package aggregate

import (
	"math"
	"testing"
	"time"
)

func TestParseRangeWidths(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	cases := []struct {
		label string
		want  string
		width time.Duration
	}{
		{"hour", "hour", time.Minute},
		{"day", "day", time.Minute},
		{"week", "week", time.Hour},
		{"month", "month", 24 * time.Hour},
		{"HOUR", "hour", time.Minute},
		{"quarter", "day", time.Minute},
		{"", "day", time.Minute},
	}
	for _, c := range cases {
		r := ParseRange(c.label, now)
		if r.Label != c.want || r.Width != c.width {
			t.Fatalf("ParseRange(%q) = %q/%v, want %q/%v", c.label, r.Label, r.Width, c.want, c.width)
		}
	}
}

func TestParseRangeDayStartsAtMidnight(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	r := ParseRange("day", now)
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !r.Start.Equal(want) {
		t.Fatalf("day range starts at %v, want %v", r.Start, want)
	}
}

func TestParseRangeHourLookback(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	r := ParseRange("hour", now)
	if got := now.Sub(r.Start); got != time.Hour {
		t.Fatalf("hour lookback = %v", got)
	}
}

func TestFieldsForType(t *testing.T) {
	if got := len(FieldsForType(TypeMPFM)); got != 8 {
		t.Fatalf("MPFM field count = %d, want 8", got)
	}
	fm := FieldsForType(TypeFlowMeter)
	if fm[FieldOFR] != "FlowRate" {
		t.Fatalf("flow meter ofr source = %q", fm[FieldOFR])
	}
	if _, ok := fm[FieldGFR]; ok {
		t.Fatal("flow meter should not report gfr")
	}
	ts := FieldsForType(TypeTemperatureSensor)
	if ts[FieldPressure] != "PressureAvg" || ts[FieldTemperature] != "Temperature" {
		t.Fatalf("temperature sensor sources = %v", ts)
	}
	if got := FieldsForType("Vibration Probe"); len(got) != 0 {
		t.Fatalf("unknown type should have no fields, got %v", got)
	}
}

func TestDeviceSeriesBucketsAndNulls(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := ParseRange("hour", now)
	readings := []Reading{
		{SerialNumber: "PS-1", RecordedAt: now.Add(-10 * time.Minute), Values: map[string]float64{"Pressure": 10, "TemperatureAvg": 60}},
		{SerialNumber: "PS-1", RecordedAt: now.Add(-10*time.Minute + 20*time.Second), Values: map[string]float64{"Pressure": 14}},
		{SerialNumber: "PS-1", RecordedAt: now.Add(-5 * time.Minute), Values: map[string]float64{"Pressure": 20, "TemperatureAvg": 62}},
	}
	points := DeviceSeries(TypePressureSensor, readings, r)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	first := points[0]
	if first.Pressure == nil || *first.Pressure != 12 {
		t.Fatalf("first bucket pressure = %v, want 12", first.Pressure)
	}
	if first.Temperature == nil || *first.Temperature != 60 {
		t.Fatalf("first bucket temperature = %v, want 60", first.Temperature)
	}
	if first.DataPoints != 2 {
		t.Fatalf("first bucket dataPoints = %d, want 2", first.DataPoints)
	}
	if first.GFR != nil {
		t.Fatal("pressure sensor must not emit gfr")
	}
}

func TestDeviceSeriesUnknownTypeAllNull(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := ParseRange("hour", now)
	readings := []Reading{
		{SerialNumber: "X-1", RecordedAt: now.Add(-2 * time.Minute), Values: map[string]float64{"Pressure": 10}},
	}
	points := DeviceSeries("Mystery", readings, r)
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	p := points[0]
	if p.Pressure != nil || p.GFR != nil || p.Temperature != nil {
		t.Fatalf("unknown type should emit null fields, got %+v", p)
	}
	if p.DataPoints != 1 {
		t.Fatalf("dataPoints = %d", p.DataPoints)
	}
}

func TestDeviceSeriesDropsOutOfRange(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := ParseRange("hour", now)
	readings := []Reading{
		{SerialNumber: "PS-1", RecordedAt: now.Add(-2 * time.Hour), Values: map[string]float64{"Pressure": 99}},
	}
	if points := DeviceSeries(TypePressureSensor, readings, r); len(points) != 0 {
		t.Fatalf("out-of-range reading produced %d points", len(points))
	}
}

func TestHierarchySeriesSumsRatesAveragesPressure(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := ParseRange("hour", now)
	at := now.Add(-3 * time.Minute)
	readings := []Reading{
		{SerialNumber: "MPFM-1", RecordedAt: at, Values: map[string]float64{"GFR": 100, "OFR": 40, "WFR": 60, "PressureAvg": 10}},
		{SerialNumber: "MPFM-2", RecordedAt: at.Add(5 * time.Second), Values: map[string]float64{"GFR": 200, "OFR": 60, "WFR": 40, "PressureAvg": 30}},
	}
	points := HierarchySeries(readings, r)
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	p := points[0]
	if p.TotalGFR != 300 || p.TotalOFR != 100 || p.TotalWFR != 100 {
		t.Fatalf("totals = gfr %v ofr %v wfr %v", p.TotalGFR, p.TotalOFR, p.TotalWFR)
	}
	if p.AvgPressure != 20 {
		t.Fatalf("avgPressure = %v, want 20", p.AvgPressure)
	}
	if p.DeviceCount != 2 {
		t.Fatalf("deviceCount = %d, want 2", p.DeviceCount)
	}
	wantGVF := 300.0 / 500.0 * 100
	if math.Abs(p.TotalGVF-wantGVF) > 1e-9 {
		t.Fatalf("totalGvf = %v, want %v", p.TotalGVF, wantGVF)
	}
	if p.TotalWLR != 50 {
		t.Fatalf("totalWlr = %v, want 50", p.TotalWLR)
	}
}

func TestHierarchySeriesPerDeviceMeanBeforeSum(t *testing.T) {
	// Two samples from one device must collapse to their mean, not double
	// the device's contribution to the bucket total.
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := ParseRange("hour", now)
	at := now.Add(-3 * time.Minute)
	readings := []Reading{
		{SerialNumber: "MPFM-1", RecordedAt: at, Values: map[string]float64{"GFR": 100}},
		{SerialNumber: "MPFM-1", RecordedAt: at.Add(10 * time.Second), Values: map[string]float64{"GFR": 300}},
	}
	points := HierarchySeries(readings, r)
	if len(points) != 1 {
		t.Fatalf("got %d points", len(points))
	}
	if points[0].TotalGFR != 200 {
		t.Fatalf("totalGfr = %v, want 200", points[0].TotalGFR)
	}
	if points[0].DeviceCount != 1 {
		t.Fatalf("deviceCount = %d, want 1", points[0].DeviceCount)
	}
}

func TestHierarchySeriesRatioClamp(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := ParseRange("hour", now)
	readings := []Reading{
		{SerialNumber: "MPFM-1", RecordedAt: now.Add(-time.Minute), Values: map[string]float64{"PressureAvg": 10}},
	}
	p := HierarchySeries(readings, r)[0]
	if p.TotalGVF != 0 || p.TotalWLR != 0 {
		t.Fatalf("ratios with zero rates = gvf %v wlr %v, want 0/0", p.TotalGVF, p.TotalWLR)
	}
}

func TestSyntheticSeriesTenPoints(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 30, 45, 0, time.UTC)
	latest := []Latest{
		{SerialNumber: "MPFM-1", Values: map[string]float64{"GFR": 100, "OFR": 40, "WFR": 60, "PressureAvg": 12}},
		{SerialNumber: "MPFM-2", Values: map[string]float64{"GFR": 50, "OFR": 10, "WFR": 40, "PressureAvg": 18}},
	}
	points := SyntheticSeries(latest, now)
	if len(points) != 10 {
		t.Fatalf("got %d points, want 10", len(points))
	}
	last := points[9]
	if !last.Timestamp.Equal(now.Truncate(time.Minute)) {
		t.Fatalf("last point at %v, want %v", last.Timestamp, now.Truncate(time.Minute))
	}
	for i := 1; i < len(points); i++ {
		if gap := points[i].Timestamp.Sub(points[i-1].Timestamp); gap != time.Minute {
			t.Fatalf("gap between points %d and %d is %v", i-1, i, gap)
		}
	}
	for i, p := range points {
		if p.TotalGFR != 150 || p.DeviceCount != 2 {
			t.Fatalf("point %d = %+v, values should repeat", i, p)
		}
	}
	if points[0].AvgPressure != 15 {
		t.Fatalf("avgPressure = %v, want 15", points[0].AvgPressure)
	}
}

func TestSyntheticSeriesEmpty(t *testing.T) {
	points := SyntheticSeries(nil, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	if len(points) != 10 {
		t.Fatalf("got %d points, want 10", len(points))
	}
	for _, p := range points {
		if p.TotalGFR != 0 || p.AvgPressure != 0 || p.DeviceCount != 0 {
			t.Fatalf("empty fallback point not zeroed: %+v", p)
		}
	}
}
