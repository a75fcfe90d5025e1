package metrics

import (
	"fmt"
	"slices"

	dto "github.com/prometheus/client_model/go"
)

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	idx := slices.IndexFunc(mfs, func(mf *dto.MetricFamily) bool { return mf.GetName() == name })
	if idx < 0 {
		return nil
	}
	return mfs[idx]
}

// fetchCounterValue returns the counter in family name whose label equals value.
func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		hit := slices.ContainsFunc(metric.GetLabel(), func(lp *dto.LabelPair) bool {
			return lp.GetName() == label && lp.GetValue() == value
		})
		if hit {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q has no series with %s=%s", name, label, value)
}
