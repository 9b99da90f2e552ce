// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads service configuration from the environment, with
// an optional config file merged underneath it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Keys double as environment variable names (viper uppercases them).
const (
	KeySolanaRPCURL          = "solana_rpc_url"
	KeyMongoDBURI            = "mongodb_uri"
	KeyKafkaBrokers          = "kafka_brokers"
	KeyKafkaTransactionTopic = "kafka_transaction_topic"
	KeyKafkaClientID         = "kafka_client_id"
	KeyRPCPort               = "rpc_port"
	KeyWebsocketPort         = "websocket_port"
	KeyScanIntervalSecs      = "scan_interval_secs"
	KeyMaxAddresses          = "max_addresses"
	KeyMaxConcurrentRequests = "max_concurrent_requests"
	KeySolanaRPCRateLimit    = "solana_rpc_rate_limit"
)

// Config is the resolved service configuration.
type Config struct {
	SolanaRPCURL          string
	MongoDBURI            string
	KafkaBrokers          []string
	KafkaTransactionTopic string
	KafkaClientID         string
	RPCPort               int
	WebsocketPort         int
	ScanInterval          time.Duration
	MaxAddresses          int
	MaxConcurrentRequests int
	// SolanaRPCRateLimit caps chain RPC calls per second; 0 disables.
	SolanaRPCRateLimit int
}

// Load resolves configuration with precedence env > file > defaults.
// file may be empty.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(KeySolanaRPCURL, "https://api.mainnet-beta.solana.com")
	v.SetDefault(KeyMongoDBURI, "mongodb://localhost:27017")
	v.SetDefault(KeyKafkaBrokers, "localhost:9092")
	v.SetDefault(KeyKafkaTransactionTopic, "solana_transactions")
	v.SetDefault(KeyKafkaClientID, "solana_scanner")
	v.SetDefault(KeyRPCPort, 8080)
	v.SetDefault(KeyWebsocketPort, 8081)
	v.SetDefault(KeyScanIntervalSecs, 5)
	v.SetDefault(KeyMaxAddresses, 100000)
	v.SetDefault(KeyMaxConcurrentRequests, 10)
	v.SetDefault(KeySolanaRPCRateLimit, 10)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		SolanaRPCURL:          getString(v, KeySolanaRPCURL),
		MongoDBURI:            getString(v, KeyMongoDBURI),
		KafkaBrokers:          splitList(getString(v, KeyKafkaBrokers)),
		KafkaTransactionTopic: getString(v, KeyKafkaTransactionTopic),
		KafkaClientID:         getString(v, KeyKafkaClientID),
		RPCPort:               getInt(v, KeyRPCPort),
		WebsocketPort:         getInt(v, KeyWebsocketPort),
		ScanInterval:          time.Duration(getInt(v, KeyScanIntervalSecs)) * time.Second,
		MaxAddresses:          getInt(v, KeyMaxAddresses),
		MaxConcurrentRequests: getInt(v, KeyMaxConcurrentRequests),
		SolanaRPCRateLimit:    getInt(v, KeySolanaRPCRateLimit),
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SolanaRPCURL == "" {
		return fmt.Errorf("%s must not be empty", strings.ToUpper(KeySolanaRPCURL))
	}
	if c.MongoDBURI == "" {
		return fmt.Errorf("%s must not be empty", strings.ToUpper(KeyMongoDBURI))
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("%s must name at least one broker", strings.ToUpper(KeyKafkaBrokers))
	}
	if err := validPort(KeyRPCPort, c.RPCPort); err != nil {
		return err
	}
	if err := validPort(KeyWebsocketPort, c.WebsocketPort); err != nil {
		return err
	}
	if c.RPCPort == c.WebsocketPort {
		return fmt.Errorf("%s and %s must differ",
			strings.ToUpper(KeyRPCPort), strings.ToUpper(KeyWebsocketPort))
	}
	if c.MaxConcurrentRequests < 0 {
		return fmt.Errorf("%s must not be negative", strings.ToUpper(KeyMaxConcurrentRequests))
	}
	if c.SolanaRPCRateLimit < 0 {
		return fmt.Errorf("%s must not be negative", strings.ToUpper(KeySolanaRPCRateLimit))
	}
	return nil
}

func validPort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s out of range: %d", strings.ToUpper(key), port)
	}
	return nil
}

func getString(v *viper.Viper, key string) string {
	return cast.ToString(v.Get(key))
}

func getInt(v *viper.Viper, key string) int {
	return cast.ToInt(v.Get(key))
}

// splitList parses a comma-separated list, trimming whitespace and
// dropping empty items.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
