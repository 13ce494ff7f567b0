// Package aggregate turns raw device readings into chart series: per-device
// bucket averages, hierarchy rollups across many devices and the synthetic
// fallback series built from latest snapshots.
package aggregate

import (
	"sort"
	"time"
)

// Reading is one telemetry sample as the chart queries see it.
type Reading struct {
	SerialNumber string
	RecordedAt   time.Time
	Values       map[string]float64
}

// Latest is a device's most recent snapshot, used for the fallback series.
type Latest struct {
	SerialNumber string
	Values       map[string]float64
}

// DevicePoint is one bucket of a single-device series. Fields are nil when
// no reading in the bucket carried the source tag.
type DevicePoint struct {
	Timestamp   time.Time `json:"timestamp"`
	GFR         *float64  `json:"gfr"`
	GOR         *float64  `json:"gor"`
	GVF         *float64  `json:"gvf"`
	OFR         *float64  `json:"ofr"`
	WFR         *float64  `json:"wfr"`
	WLR         *float64  `json:"wlr"`
	Pressure    *float64  `json:"pressure"`
	Temperature *float64  `json:"temperature"`
	DataPoints  int       `json:"dataPoints"`
}

// HierarchyPoint is one bucket of a multi-device rollup. Rates are summed
// across devices, pressure and temperature averaged, and the gas and water
// ratios re-derived from the summed rates.
type HierarchyPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	TotalGFR       float64   `json:"totalGfr"`
	TotalGOR       float64   `json:"totalGor"`
	TotalGVF       float64   `json:"totalGvf"`
	TotalOFR       float64   `json:"totalOfr"`
	TotalWFR       float64   `json:"totalWfr"`
	TotalWLR       float64   `json:"totalWlr"`
	AvgPressure    float64   `json:"avgPressure"`
	AvgTemperature float64   `json:"avgTemperature"`
	DeviceCount    int       `json:"deviceCount"`
}

type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(v float64) { m.sum += v; m.n++ }

func (m meanAcc) mean() (float64, bool) {
	if m.n == 0 {
		return 0, false
	}
	return m.sum / float64(m.n), true
}

// DeviceSeries buckets one device's readings and averages each chart field
// over the readings that carry its source tag. Buckets with no readings are
// omitted rather than zero-filled.
func DeviceSeries(typeName string, readings []Reading, r Range) []DevicePoint {
	fields := FieldsForType(typeName)

	type bucketAcc struct {
		count int
		accs  map[string]*meanAcc
	}
	buckets := make(map[time.Time]*bucketAcc)
	for _, rd := range readings {
		if !r.Contains(rd.RecordedAt) {
			continue
		}
		key := r.Bucket(rd.RecordedAt)
		b := buckets[key]
		if b == nil {
			b = &bucketAcc{accs: make(map[string]*meanAcc)}
			buckets[key] = b
		}
		b.count++
		for field, tag := range fields {
			if v, ok := rd.Values[tag]; ok {
				acc := b.accs[field]
				if acc == nil {
					acc = &meanAcc{}
					b.accs[field] = acc
				}
				acc.add(v)
			}
		}
	}

	points := make([]DevicePoint, 0, len(buckets))
	for ts, b := range buckets {
		p := DevicePoint{Timestamp: ts, DataPoints: b.count}
		assign := func(dst **float64, field string) {
			if acc, ok := b.accs[field]; ok {
				if m, ok := acc.mean(); ok {
					v := m
					*dst = &v
				}
			}
		}
		assign(&p.GFR, FieldGFR)
		assign(&p.GOR, FieldGOR)
		assign(&p.GVF, FieldGVF)
		assign(&p.OFR, FieldOFR)
		assign(&p.WFR, FieldWFR)
		assign(&p.WLR, FieldWLR)
		assign(&p.Pressure, FieldPressure)
		assign(&p.Temperature, FieldTemperature)
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points
}

// Rollup tags. The hierarchy path reads the multiphase tags directly rather
// than going through per-type field sets.
const (
	tagGFR      = "GFR"
	tagGOR      = "GOR"
	tagOFR      = "OFR"
	tagWFR      = "WFR"
	tagPressure = "PressureAvg"
	tagTemp     = "TemperatureAvg"
)

// HierarchySeries rolls readings from many devices into one series. Within a
// bucket each device is first reduced to its own mean per tag, then rates are
// summed across devices and pressure and temperature averaged over the
// devices that reported them.
func HierarchySeries(readings []Reading, r Range) []HierarchyPoint {
	type devAcc map[string]*meanAcc
	buckets := make(map[time.Time]map[string]devAcc)
	for _, rd := range readings {
		if !r.Contains(rd.RecordedAt) {
			continue
		}
		key := r.Bucket(rd.RecordedAt)
		devices := buckets[key]
		if devices == nil {
			devices = make(map[string]devAcc)
			buckets[key] = devices
		}
		d := devices[rd.SerialNumber]
		if d == nil {
			d = make(devAcc)
			devices[rd.SerialNumber] = d
		}
		for _, tag := range []string{tagGFR, tagGOR, tagOFR, tagWFR, tagPressure, tagTemp} {
			if v, ok := rd.Values[tag]; ok {
				acc := d[tag]
				if acc == nil {
					acc = &meanAcc{}
					d[tag] = acc
				}
				acc.add(v)
			}
		}
	}

	points := make([]HierarchyPoint, 0, len(buckets))
	for ts, devices := range buckets {
		p := HierarchyPoint{Timestamp: ts, DeviceCount: len(devices)}
		var pressure, temp meanAcc
		for _, d := range devices {
			if m, ok := devMean(d, tagGFR); ok {
				p.TotalGFR += m
			}
			if m, ok := devMean(d, tagGOR); ok {
				p.TotalGOR += m
			}
			if m, ok := devMean(d, tagOFR); ok {
				p.TotalOFR += m
			}
			if m, ok := devMean(d, tagWFR); ok {
				p.TotalWFR += m
			}
			if m, ok := devMean(d, tagPressure); ok {
				pressure.add(m)
			}
			if m, ok := devMean(d, tagTemp); ok {
				temp.add(m)
			}
		}
		p.AvgPressure, _ = pressure.mean()
		p.AvgTemperature, _ = temp.mean()
		p.TotalGVF = ratio(p.TotalGFR, p.TotalGFR+p.TotalOFR+p.TotalWFR)
		p.TotalWLR = ratio(p.TotalWFR, p.TotalOFR+p.TotalWFR)
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points
}

// SyntheticSeries builds the fallback series used when the window holds no
// readings: one aggregate over the latest snapshots, repeated as exactly ten
// points at one-minute spacing ending at now. With no snapshots every point
// is zero-valued with a device count of zero.
func SyntheticSeries(latest []Latest, now time.Time) []HierarchyPoint {
	base := HierarchyPoint{DeviceCount: len(latest)}
	var pressure, temp meanAcc
	for _, l := range latest {
		base.TotalGFR += l.Values[tagGFR]
		base.TotalGOR += l.Values[tagGOR]
		base.TotalOFR += l.Values[tagOFR]
		base.TotalWFR += l.Values[tagWFR]
		if v, ok := l.Values[tagPressure]; ok {
			pressure.add(v)
		}
		if v, ok := l.Values[tagTemp]; ok {
			temp.add(v)
		}
	}
	base.AvgPressure, _ = pressure.mean()
	base.AvgTemperature, _ = temp.mean()
	base.TotalGVF = ratio(base.TotalGFR, base.TotalGFR+base.TotalOFR+base.TotalWFR)
	base.TotalWLR = ratio(base.TotalWFR, base.TotalOFR+base.TotalWFR)

	now = now.UTC().Truncate(time.Minute)
	points := make([]HierarchyPoint, 0, 10)
	for i := 9; i >= 0; i-- {
		p := base
		p.Timestamp = now.Add(-time.Duration(i) * time.Minute)
		points = append(points, p)
	}
	return points
}

func devMean(d map[string]*meanAcc, tag string) (float64, bool) {
	acc := d[tag]
	if acc == nil {
		return 0, false
	}
	return acc.mean()
}

// ratio returns num/den as a percentage, clamped to zero when the
// denominator is not positive.
func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den * 100
}
