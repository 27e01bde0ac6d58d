package zkp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
)

var ErrArtifactsUnavailable = errors.New("proving artifacts unavailable")

func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ElipticalCurveID)
	_, err = pk.ReadFrom(f)
	return pk, err
}

func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ElipticalCurveID)
	_, err = vk.ReadFrom(f)
	return vk, err
}

func saveKey(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	return saveKey(path, func(f *os.File) error {
		_, err := pk.WriteTo(f)
		return err
	})
}

func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	return saveKey(path, func(f *os.File) error {
		_, err := vk.WriteTo(f)
		return err
	})
}

// LoadOrSetupKeys loads both keys, or runs a local setup when allowed and persists
// the result to the given paths if they are set.
func LoadOrSetupKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string, allowSetup bool) (groth16.ProvingKey, groth16.VerifyingKey, bool, error) {
	if pkPath != "" && vkPath != "" {
		pk, pkErr := LoadProvingKey(pkPath)
		vk, vkErr := LoadVerifyingKey(vkPath)
		if pkErr == nil && vkErr == nil {
			return pk, vk, false, nil
		}
		if !allowSetup {
			return nil, nil, false, fmt.Errorf("%w: %v", ErrArtifactsUnavailable, errors.Join(pkErr, vkErr))
		}
	} else if !allowSetup {
		return nil, nil, false, fmt.Errorf("%w: key paths not configured", ErrArtifactsUnavailable)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, false, err
	}
	if pkPath != "" && vkPath != "" {
		if err := SaveProvingKey(pkPath, pk); err != nil {
			return nil, nil, false, err
		}
		if err := SaveVerifyingKey(vkPath, vk); err != nil {
			return nil, nil, false, err
		}
	}
	return pk, vk, true, nil
}
