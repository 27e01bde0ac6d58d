package zkp

import (
	"errors"
	"fmt"

	"zk-tax-system/internal/config"
	"zk-tax-system/pkg/logger"
)

// Select probes the artifacts and picks the backend. Production never falls back
// to the simulated backend.
func Select(cfg config.ZkpConfig, mode config.DeploymentMode, l *logger.Logger) (Backend, error) {
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}

	allowSetup := cfg.AllowLocalSetup && !mode.IsProduction()
	pk, vk, generated, err := LoadOrSetupKeys(ccs, cfg.ProvingKeyPath, cfg.VerifyingKeyPath, allowSetup)
	switch {
	case err == nil:
		if generated {
			l.Warn("Using locally generated proving keys")
		}
		l.Infof("Sound proof backend ready (%d constraints)", ccs.GetNbConstraints())
		return NewSoundBackend(ccs, pk, vk, cfg.CacheSize, l)
	case mode.IsProduction():
		return nil, fmt.Errorf("production requires proving artifacts: %w", err)
	case errors.Is(err, ErrArtifactsUnavailable):
		l.Warnf("Falling back to simulated proof backend: %v", err)
		return NewSimulatedBackend(l), nil
	default:
		return nil, err
	}
}
