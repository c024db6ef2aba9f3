package metrics

import "strings"

const metricPrefix = "modelstore_"

// MetricName prefixes name with the service namespace unless already present.
func MetricName(name string) string {
	if strings.HasPrefix(name, metricPrefix) {
		return name
	}
	return metricPrefix + name
}

// MetricNameWithSubsystem builds <prefix><subsystem>_<name>, trimming stray
// underscores around the subsystem.
func MetricNameWithSubsystem(subsystem, name string) string {
	sub := strings.Trim(subsystem, "_")
	switch {
	case sub == "":
		return MetricName(name)
	case name == "":
		return MetricName(sub)
	default:
		return MetricName(sub + "_" + name)
	}
}
