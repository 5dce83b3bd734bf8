package anomaly

import (
	"time"

	"github.com/agubarev/aegis/pkg/baseline"
)

// FeatureCount is the dimensionality of a feature vector
const FeatureCount = 10

// feature positions
const (
	FHour = iota
	FWeekend
	FCPUDeviation
	FMemoryDeviation
	FDiskDeviation
	FProcessCountDeviation
	FCommandLengthDeviation
	FUnseenCommand
	FUnseenProcesses
	FUnseenLogSource
)

// FeatureNames lists the features in vector order
var FeatureNames = [FeatureCount]string{
	"hour",
	"weekend",
	"cpu_deviation",
	"memory_deviation",
	"disk_deviation",
	"process_count_deviation",
	"command_length_deviation",
	"unseen_command",
	"unseen_processes",
	"unseen_log_source",
}

// Vector is a point in feature space
type Vector [FeatureCount]float64

// Features describes an observation relative to a device's profile
func Features(o baseline.Observation, p baseline.Profile) (v Vector) {
	at := o.At.UTC()

	v[FHour] = float64(at.Hour())

	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		v[FWeekend] = 1
	}

	if o.HasMetrics {
		v[FCPUDeviation] = p.CPU.Deviation(o.CPU)
		v[FMemoryDeviation] = p.Memory.Deviation(o.Memory)
		v[FDiskDeviation] = p.Disk.Deviation(o.Disk)
	}

	if o.HasProcesses {
		v[FProcessCountDeviation] = p.ProcessCount.Deviation(float64(len(o.Processes)))

		if len(o.Processes) > 0 {
			unseen := 0
			for _, name := range o.Processes {
				if !p.Processes.Contains(name) {
					unseen++
				}
			}

			v[FUnseenProcesses] = float64(unseen) / float64(len(o.Processes))
		}
	}

	if o.Command != "" {
		v[FCommandLengthDeviation] = p.CommandLength.Deviation(float64(len(o.Command)))

		if !p.Commands.Contains(o.Command) {
			v[FUnseenCommand] = 1
		}
	}

	if o.LogSource != "" && !p.LogSources.Contains(o.LogSource) {
		v[FUnseenLogSource] = 1
	}

	return v
}
