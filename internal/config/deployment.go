package config

import (
	"fmt"
	"strings"
)

type DeploymentMode string

const (
	Development DeploymentMode = "development"
	Test        DeploymentMode = "test"
	Production  DeploymentMode = "production"
)

func ParseDeploymentMode(s string) (DeploymentMode, error) {
	switch DeploymentMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Development:
		return Development, nil
	case Test:
		return Test, nil
	case Production:
		return Production, nil
	default:
		return "", fmt.Errorf("unknown deployment mode %q", s)
	}
}

func (m DeploymentMode) IsProduction() bool { return m == Production }
