package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/etherlink-io/goetherlink"
)

type fileConfig struct {
	Port      string `toml:"port"`
	VendorID  string `toml:"vendor_id"`
	ProductID string `toml:"product_id"`
	BaudRate  int    `toml:"baudrate"`
}

func defaultSerialConfig() goetherlink.SerialConfig {
	return goetherlink.SerialConfig{
		VendorID:  "0403",
		ProductID: "6015",
		BaudRate:  goetherlink.DefaultBaudRate,
	}
}

// loadSerialConfig reads the TOML config at path, keeping defaults for any
// key the file does not define. An empty path yields the defaults.
func loadSerialConfig(path string) (goetherlink.SerialConfig, error) {
	cfg := defaultSerialConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return goetherlink.SerialConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("port") {
		cfg.PortName = raw.Port
	}
	if meta.IsDefined("vendor_id") {
		cfg.VendorID = raw.VendorID
	}
	if meta.IsDefined("product_id") {
		cfg.ProductID = raw.ProductID
	}
	if meta.IsDefined("baudrate") && raw.BaudRate > 0 {
		cfg.BaudRate = raw.BaudRate
	}
	return cfg, nil
}
