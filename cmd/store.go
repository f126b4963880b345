// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/rtu-slave/internal/config"
	"github.com/ffutop/rtu-slave/internal/slave/image"
	"github.com/ffutop/rtu-slave/internal/slave/model"
)

// buildStore creates the register store from the configured capacities,
// applies the initial values and then, if loadImage is set, the seed image.
func buildStore(cfg config.StoreConfig, loadImage bool) (*model.DataModel, error) {
	m, err := model.NewDataModel(model.Capacity{
		Coils:            cfg.Coils,
		DiscreteInputs:   cfg.DiscreteInputs,
		HoldingRegisters: cfg.HoldingRegisters,
		InputRegisters:   cfg.InputRegisters,
	})
	if err != nil {
		return nil, err
	}

	for _, a := range cfg.Initial.Coils {
		if err := onBit(a, m.WriteSingleCoil); err != nil {
			return nil, fmt.Errorf("initial coil %d: %w", a, err)
		}
	}
	for _, a := range cfg.Initial.DiscreteInputs {
		if err := onBit(a, m.SetDiscreteInput); err != nil {
			return nil, fmt.Errorf("initial discrete input %d: %w", a, err)
		}
	}
	for _, r := range cfg.Initial.HoldingRegisters {
		if err := setRegister(r, m.WriteSingleRegister); err != nil {
			return nil, fmt.Errorf("initial holding register %d: %w", r.Address, err)
		}
	}
	for _, r := range cfg.Initial.InputRegisters {
		if err := setRegister(r, m.SetInputRegister); err != nil {
			return nil, fmt.Errorf("initial input register %d: %w", r.Address, err)
		}
	}

	if loadImage && cfg.Image != "" {
		if err := image.Load(cfg.Image, m); err != nil {
			return nil, err
		}
		slog.Info("Loaded store image", "path", cfg.Image)
	}
	return m, nil
}

func onBit(address int, set func(uint16, bool) error) error {
	if address < 0 || address > 0xFFFF {
		return model.ErrIllegalAddress
	}
	return set(uint16(address), true)
}

func setRegister(r config.RegisterValue, set func(uint16, uint16) error) error {
	if r.Address < 0 || r.Address > 0xFFFF {
		return model.ErrIllegalAddress
	}
	if r.Value < 0 || r.Value > 0xFFFF {
		return fmt.Errorf("value %d does not fit in a register", r.Value)
	}
	return set(uint16(r.Address), uint16(r.Value))
}
