package iax

import (
	"sync"

	"github.com/spf13/viper"
)

var configOnce sync.Once

// Config holds all configurable IAX2 analysis parameters
type Config struct {
	// Transport
	Port int `mapstructure:"port"`

	// Reassembly limits
	MaxFragmentSize int `mapstructure:"max_fragment_size"`

	// Buffer configurations
	PacketBuffer int `mapstructure:"packet_buffer"`
}

// initConfigDefaults initializes viper defaults once
func initConfigDefaults() {
	viper.SetDefault("iax.port", IAXPort)
	viper.SetDefault("iax.max_fragment_size", DefaultMaxFragmentSize)
	viper.SetDefault("iax.packet_buffer", DefaultPacketBuffer)
}

// GetConfig returns the current IAX analysis configuration with defaults
func GetConfig() *Config {
	configOnce.Do(initConfigDefaults)

	return &Config{
		Port:            viper.GetInt("iax.port"),
		MaxFragmentSize: viper.GetInt("iax.max_fragment_size"),
		PacketBuffer:    viper.GetInt("iax.packet_buffer"),
	}
}
