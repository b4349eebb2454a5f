package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// reading config error is fatal, and exits main thread
func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

func readFile(path string, cfg *Configuration) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

func readEnv(cfg *Configuration) error {
	if err := envconfig.Process("", cfg); err != nil {
		return errors.Wrap(err, "read environment")
	}
	return nil
}

// Load reads the yaml file, lets the environment override it, and validates.
func Load(path string) (*Configuration, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	var cfg Configuration
	if err := readFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := readEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Init(path string) {
	cfg, err := Load(path)
	if err != nil {
		processError(err)
	}
	Config = *cfg
}
