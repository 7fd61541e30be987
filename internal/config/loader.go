package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/YuminosukeSato/amrpredict/pkg/errors"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels: AMRPREDICT_SPLIT__TEST_FRACTION -> split.test_fraction.
const EnvPrefix = "AMRPREDICT_"

// flagKeys maps command-line flag names onto configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"data":                "data.path",
	"id-column":           "data.id_column",
	"label-column":        "data.label_column",
	"delimiter":           "data.delimiter",
	"positive-class":      "label.positive_class",
	"test-fraction":       "split.test_fraction",
	"validation-fraction": "split.validation_fraction",
	"test-seed":           "split.test_seed",
	"validation-seed":     "split.validation_seed",
	"cv-folds":            "split.cv_folds",
	"mixture":             "logistic.mixture",
	"forest-seed":         "forest.seed",
	"jobs":                "forest.jobs",
	"metric":              "evaluation.metric",
	"workers":             "evaluation.workers",
	"top-k":               "importance.top_k",
	"output":              "output.dir",
	"format":              "output.format",
	"plots":               "output.plots",
	"save-models":         "output.save_models",
	"log-level":           "log.level",
	"log-format":          "log.format",
}

// Result is a loaded configuration plus the file it came from, if any.
type Result struct {
	Config   *Config
	FileUsed string
}

// Load resolves configuration from defaults, cfgFile (or ./amrpredict.yaml
// when cfgFile is empty and that file exists), AMRPREDICT_* environment
// variables and the changed flags in flags. The result is validated.
func Load(cfgFile string, flags *pflag.FlagSet) (*Result, error) {
	k := koanf.New(".")

	// 1. defaults
	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	// 2. config file
	used := cfgFile
	if used == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			used = DefaultConfigFile
		}
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", used)
		}
	}

	// 3. environment
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	// 4. flags, only those set explicitly
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, errors.Wrap(err, "load flags")
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Result{Config: cfg, FileUsed: used}, nil
}

// envKey turns AMRPREDICT_FOREST__MTRY_FRACTIONS=0.1,0.3 into
// ("forest.mtry_fractions", []string{"0.1", "0.3"}).
func envKey(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}
