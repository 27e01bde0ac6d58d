package config

import (
	"time"

	"zk-tax-system/pkg/utilities"
)

type DeploymentConfigJson struct {
	Mode string `json:"mode"`
}

type ZkpConfigJson struct {
	ProvingKeyPath   string `json:"proving_key_path"`
	VerifyingKeyPath string `json:"verifying_key_path"`
	AllowLocalSetup  bool   `json:"allow_local_setup"`
	CacheSize        int    `json:"verification_cache_size"`
}

type ZkpConfig struct {
	ProvingKeyPath   string
	VerifyingKeyPath string
	AllowLocalSetup  bool
	CacheSize        int
}

func (z ZkpConfigJson) ConvertToDomain() ZkpConfig {
	size := z.CacheSize
	if size <= 0 {
		size = 1024
	}
	return ZkpConfig{
		ProvingKeyPath:   z.ProvingKeyPath,
		VerifyingKeyPath: z.VerifyingKeyPath,
		AllowLocalSetup:  z.AllowLocalSetup,
		CacheSize:        size,
	}
}

type ChainConfigJson struct {
	Gateway            string  `json:"gateway"`
	RpcUrl             string  `json:"rpc_url"`
	ChainId            int64   `json:"chain_id"`
	VerifierAddress    string  `json:"verifier_address"`
	PaymentAddress     string  `json:"payment_address"`
	SignerKeyEnv       string  `json:"signer_key_env"`
	CallTimeoutSeconds int     `json:"call_timeout_seconds"`
	TokenDecimals      int     `json:"token_decimals"`
	FiatRate           float64 `json:"fiat_rate"`
	FiatCurrency       string  `json:"fiat_currency"`
}

type ChainConfig struct {
	Gateway         string
	RpcUrl          string
	ChainId         int64
	VerifierAddress string
	PaymentAddress  string
	SignerKeyEnv    string
	CallTimeout     time.Duration
	TokenDecimals   int
	FiatRate        float64
	FiatCurrency    string
}

func (c ChainConfigJson) ConvertToDomain() ChainConfig {
	timeout := time.Duration(c.CallTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	decimals := c.TokenDecimals
	if decimals <= 0 {
		decimals = 18
	}
	keyEnv := c.SignerKeyEnv
	if keyEnv == "" {
		keyEnv = "CHAIN_SIGNER_KEY"
	}
	return ChainConfig{
		Gateway:         utilities.Ternary(c.Gateway == "", "simulated", c.Gateway),
		RpcUrl:          utilities.GetenvDefault("CHAIN_RPC_URL", c.RpcUrl),
		ChainId:         c.ChainId,
		VerifierAddress: c.VerifierAddress,
		PaymentAddress:  c.PaymentAddress,
		SignerKeyEnv:    keyEnv,
		CallTimeout:     timeout,
		TokenDecimals:   decimals,
		FiatRate:        c.FiatRate,
		FiatCurrency:    utilities.Ternary(c.FiatCurrency == "", "USD", c.FiatCurrency),
	}
}

type LifecycleConfigJson struct {
	ProofTtlDays      int    `json:"proof_ttl_days"`
	ExpirySweepSpec   string `json:"expiry_sweep_spec"`
	OutboxPublishSpec string `json:"outbox_publish_spec"`
	InternalToken     string `json:"internal_token"`
}

type LifecycleConfig struct {
	ProofTTL          time.Duration
	ExpirySweepSpec   string
	OutboxPublishSpec string
	InternalToken     string
}

func (l LifecycleConfigJson) ConvertToDomain() LifecycleConfig {
	days := l.ProofTtlDays
	if days <= 0 {
		days = 365
	}
	return LifecycleConfig{
		ProofTTL:          time.Duration(days) * 24 * time.Hour,
		ExpirySweepSpec:   utilities.Ternary(l.ExpirySweepSpec == "", "@every 1h", l.ExpirySweepSpec),
		OutboxPublishSpec: utilities.Ternary(l.OutboxPublishSpec == "", "@every 10s", l.OutboxPublishSpec),
		InternalToken:     utilities.GetenvDefault("INTERNAL_API_TOKEN", l.InternalToken),
	}
}

type DatabaseConfigJson struct {
	Driver           string `json:"driver"`
	ConnectionString string `json:"connection_string"`
	Migrate          bool   `json:"migrate"`
}

type DatabaseConfig struct {
	Driver           string
	ConnectionString string
	Migrate          bool
}

func (d DatabaseConfigJson) ConvertToDomain() DatabaseConfig {
	return DatabaseConfig{
		Driver:           utilities.Ternary(d.Driver == "", "sqlite", d.Driver),
		ConnectionString: utilities.GetenvDefault("DATABASE_URL", d.ConnectionString),
		Migrate:          d.Migrate,
	}
}
