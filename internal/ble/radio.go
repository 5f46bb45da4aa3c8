// Package ble is a host stack on tinygo.org/x/bluetooth. It accepts the
// same request sequence as an embedded Bluedroid stack and publishes the
// assembled service through the host adapter once the declared handle
// budget is used up.
package ble

import (
	"errors"
	"fmt"

	"tinygo.org/x/bluetooth"
)

// Radio is the part of a host adapter a Peripheral drives.
type Radio interface {
	Enable() error
	AddService(svc *bluetooth.Service) error
	Advertise(opts bluetooth.AdvertisementOptions) error
}

type adapterRadio struct {
	adapter *bluetooth.Adapter
}

// DefaultRadio returns the system adapter.
func DefaultRadio() Radio {
	return adapterRadio{adapter: bluetooth.DefaultAdapter}
}

func (r adapterRadio) Enable() error {
	if err := r.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}
	return nil
}

func (r adapterRadio) AddService(svc *bluetooth.Service) error {
	if err := r.adapter.AddService(svc); err != nil {
		return fmt.Errorf("failed to add service: %w", err)
	}
	return nil
}

func (r adapterRadio) Advertise(opts bluetooth.AdvertisementOptions) error {
	adv := r.adapter.DefaultAdvertisement()
	if adv == nil {
		return errors.New("default advertisement is nil")
	}
	if err := adv.Configure(opts); err != nil {
		return fmt.Errorf("failed to configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}
	return nil
}
