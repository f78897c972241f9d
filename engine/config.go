package engine

import (
	"github.com/ttnn-vis/ttnn-vis-cli/engine/bottleneck"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/memmap"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/report"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/sharding"
)

// Config groups the thresholds of every analyzer.
type Config struct {
	Metrics      metrics.Config            `yaml:"metrics"`
	Bottlenecks  bottleneck.Config         `yaml:"bottlenecks"`
	Sharding     sharding.Config           `yaml:"sharding"`
	MemoryMap    memmap.Options            `yaml:"memory_map"`
	HostOverhead report.HostOverheadConfig `yaml:"host_overhead"`
	MultiCQ      report.MultiCQConfig      `yaml:"multi_cq"`
	DataFormat   report.DataFormatConfig   `yaml:"data_format"`
}

// DefaultConfig returns every section at its defaults.
func DefaultConfig() Config {
	return Config{
		Metrics:      metrics.DefaultConfig(),
		Bottlenecks:  bottleneck.DefaultConfig(),
		Sharding:     sharding.DefaultConfig(),
		MemoryMap:    memmap.DefaultOptions(),
		HostOverhead: report.DefaultHostOverheadConfig(),
		MultiCQ:      report.DefaultMultiCQConfig(),
		DataFormat:   report.DefaultDataFormatConfig(),
	}
}

// Validate returns the first *trace.ConfigError found, section by section.
func (c Config) Validate() error {
	validators := []func() error{
		c.Metrics.Validate,
		c.Bottlenecks.Validate,
		c.Sharding.Validate,
		c.MemoryMap.Validate,
		c.HostOverhead.Validate,
		c.MultiCQ.Validate,
		c.DataFormat.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}
