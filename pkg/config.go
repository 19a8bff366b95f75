package merger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RunJob points to the two decoded streams of one run and to the merged file.
type RunJob struct {
	RunNumber     int    `json:"run_number" yaml:"run_number"`
	PrimaryFile   string `json:"primary" yaml:"primary"`
	SecondaryFile string `json:"secondary" yaml:"secondary"`
	OutputFile    string `json:"output" yaml:"output"`
}

type Configuration struct {
	OffsetSearchWindow    int      `json:"offset_search_window" yaml:"offset_search_window"`
	BoardCount            int      `json:"board_count" yaml:"board_count"`
	ChannelsPerBoard      int      `json:"channels_per_board" yaml:"channels_per_board"`
	PedestalTriggerMask   int64    `json:"pedestal_trigger_mask" yaml:"pedestal_trigger_mask"`
	SkipMerge             bool     `json:"skip_merge" yaml:"skip_merge"`
	ProgressInterval      int      `json:"progress_interval" yaml:"progress_interval"`
	OffsetMaxCostFraction float64  `json:"offset_max_cost_fraction" yaml:"offset_max_cost_fraction"`
	OffsetMinContrast     float64  `json:"offset_min_contrast" yaml:"offset_min_contrast"`
	FailOnAmbiguousOffset bool     `json:"fail_on_ambiguous_offset" yaml:"fail_on_ambiguous_offset"`
	CompressionLevel      int      `json:"compression_level" yaml:"compression_level"`
	NumWorkers            int      `json:"num_workers" yaml:"num_workers"`
	Verbosity             int      `json:"verbosity" yaml:"verbosity"`
	Runs                  []RunJob `json:"runs" yaml:"runs"`
	UseDB                 bool     `json:"use_db" yaml:"use_db"`
	Host                  string   `json:"host" yaml:"host"`
	User                  string   `json:"user" yaml:"user"`
	Passwd                string   `json:"pass" yaml:"pass"`
	DBName                string   `json:"dbname" yaml:"dbname"`
}

func DefaultConfiguration() Configuration {
	var config Configuration
	config.OffsetSearchWindow = 4
	config.BoardCount = N_BOARDS
	config.ChannelsPerBoard = N_CHANNELS
	config.PedestalTriggerMask = PEDESTAL_TRIGGER_MASK
	config.SkipMerge = false
	config.ProgressInterval = 10000
	config.OffsetMaxCostFraction = 0.1
	config.OffsetMinContrast = 0.5
	config.FailOnAmbiguousOffset = false
	config.CompressionLevel = 4
	config.NumWorkers = 1
	config.Verbosity = 0
	config.UseDB = false
	config.Host = "localhost"
	config.User = "drmerge"
	config.Passwd = ""
	config.DBName = "TB2023"
	return config
}

// LoadConfiguration reads a JSON or YAML (by extension) configuration file on
// top of the default values.
func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, fmt.Errorf("error parsing configuration file %q: %w", filename, err)
	}
	return config, nil
}

func (c Configuration) Validate() error {
	var errs []error
	if c.OffsetSearchWindow < 0 {
		errs = append(errs, fmt.Errorf("offset_search_window must be >= 0, got %d", c.OffsetSearchWindow))
	}
	if c.BoardCount <= 0 {
		errs = append(errs, fmt.Errorf("board_count must be > 0, got %d", c.BoardCount))
	}
	if c.ChannelsPerBoard <= 0 {
		errs = append(errs, fmt.Errorf("channels_per_board must be > 0, got %d", c.ChannelsPerBoard))
	}
	if c.ProgressInterval < 0 {
		errs = append(errs, fmt.Errorf("progress_interval must be >= 0, got %d", c.ProgressInterval))
	}
	if c.OffsetMaxCostFraction < 0 || c.OffsetMaxCostFraction > 1 {
		errs = append(errs, fmt.Errorf("offset_max_cost_fraction must be in [0, 1], got %g", c.OffsetMaxCostFraction))
	}
	if c.OffsetMinContrast < 0 || c.OffsetMinContrast > 1 {
		errs = append(errs, fmt.Errorf("offset_min_contrast must be in [0, 1], got %g", c.OffsetMinContrast))
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("compression_level must be in [0, 9], got %d", c.CompressionLevel))
	}
	if c.NumWorkers <= 0 {
		errs = append(errs, fmt.Errorf("num_workers must be > 0, got %d", c.NumWorkers))
	}
	return errors.Join(errs...)
}

func PrintConfiguration(config Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("Offset search window: %d", config.OffsetSearchWindow), "config")
	logger.Info(fmt.Sprintf("Board count: %d", config.BoardCount), "config")
	logger.Info(fmt.Sprintf("Channels per board: %d", config.ChannelsPerBoard), "config")
	logger.Info(fmt.Sprintf("Pedestal trigger mask: %d", config.PedestalTriggerMask), "config")
	logger.Info(fmt.Sprintf("Skip merge: %t", config.SkipMerge), "config")
	logger.Info(fmt.Sprintf("Progress interval: %d", config.ProgressInterval), "config")
	logger.Info(fmt.Sprintf("Offset max cost fraction: %g", config.OffsetMaxCostFraction), "config")
	logger.Info(fmt.Sprintf("Offset min contrast: %g", config.OffsetMinContrast), "config")
	logger.Info(fmt.Sprintf("Fail on ambiguous offset: %t", config.FailOnAmbiguousOffset), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Runs: %d", len(config.Runs)), "config")
	logger.Info(fmt.Sprintf("Use DB: %t", config.UseDB), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
}
