package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alecthomas/kong"

	"github.com/vitaminmoo/gattprov/internal/advert"
	"github.com/vitaminmoo/gattprov/internal/handles"
	"github.com/vitaminmoo/gattprov/internal/provision"
	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

// DefaultChars is the characteristic count used when none is given.
// Override at build time with -ldflags "-X .../internal/config.DefaultChars=N".
var DefaultChars = "16"

const (
	DefaultName        = "TESTER"
	DefaultBaseUUID    = "367ec074-9a6c-11ea-8ad0-377f1627427f"
	DefaultMinInterval = 0x0006
	DefaultMaxInterval = 0x0010
)

// Backends
const (
	BackendSim  = "sim"
	BackendHost = "host"
)

// Provisioning holds the settings of one provisioning run. It is embedded
// into the commands that provision.
type Provisioning struct {
	Chars        int           `short:"n" default:"${default_chars}" env:"GATTPROV_CHARS" help:"Number of characteristics to register."`
	Name         string        `default:"${default_name}" env:"GATTPROV_NAME" help:"GAP device name."`
	BaseUUID     string        `name:"base-uuid" default:"${default_base_uuid}" env:"GATTPROV_BASE_UUID" help:"Service UUID. Characteristic UUIDs count up from it."`
	AppID        uint16        `name:"app-id" default:"0" env:"GATTPROV_APP_ID" help:"GATT server application id."`
	HandlePolicy string        `name:"handle-policy" enum:"formula,stack" default:"formula" env:"GATTPROV_HANDLE_POLICY" help:"Handle recorded on mismatch (${enum})."`
	StepTimeout  time.Duration `name:"step-timeout" default:"0s" env:"GATTPROV_STEP_TIMEOUT" help:"Per-completion timeout. Zero waits forever."`
	Backend      string        `enum:"sim,host" default:"sim" env:"GATTPROV_BACKEND" help:"Stack backend (${enum})."`
	MinInterval  uint16        `name:"min-interval" default:"${default_min_interval}" env:"GATTPROV_MIN_INTERVAL" help:"Preferred minimum connection interval, 1.25ms units."`
	MaxInterval  uint16        `name:"max-interval" default:"${default_max_interval}" env:"GATTPROV_MAX_INTERVAL" help:"Preferred maximum connection interval, 1.25ms units."`
}

// Vars returns the interpolation variables the Provisioning tags refer to.
func Vars() kong.Vars {
	return kong.Vars{
		"default_chars":        DefaultChars,
		"default_name":         DefaultName,
		"default_base_uuid":    DefaultBaseUUID,
		"default_min_interval": strconv.Itoa(DefaultMinInterval),
		"default_max_interval": strconv.Itoa(DefaultMaxInterval),
	}
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Provisioning {
	chars, err := strconv.Atoi(DefaultChars)
	if err != nil {
		chars = 1
	}
	return Provisioning{
		Chars:        chars,
		Name:         DefaultName,
		BaseUUID:     DefaultBaseUUID,
		HandlePolicy: string(provision.PolicyFormula),
		Backend:      BackendSim,
		MinInterval:  DefaultMinInterval,
		MaxInterval:  DefaultMaxInterval,
	}
}

// Validate checks the settings without building anything.
func (p Provisioning) Validate() error {
	_, err := p.ProvisionConfig()
	return err
}

// ProvisionConfig converts the settings into a state machine config.
func (p Provisioning) ProvisionConfig() (provision.Config, error) {
	if p.Chars < 1 {
		return provision.Config{}, fmt.Errorf("chars must be at least 1, got %d", p.Chars)
	}
	if limit := handles.MaxCharacteristics(); p.Chars > limit {
		return provision.Config{}, fmt.Errorf("chars %d needs %d handles, more than a service can hold (max %d chars)",
			p.Chars, handles.Budget(p.Chars), limit)
	}
	if p.Name == "" {
		return provision.Config{}, fmt.Errorf("device name must not be empty")
	}
	base, err := uuidgen.Parse(p.BaseUUID)
	if err != nil {
		return provision.Config{}, fmt.Errorf("failed to parse base uuid: %w", err)
	}
	policy, err := provision.ParsePolicy(p.HandlePolicy)
	if err != nil {
		return provision.Config{}, err
	}
	switch p.Backend {
	case "", BackendSim, BackendHost:
	default:
		return provision.Config{}, fmt.Errorf("unknown backend %q", p.Backend)
	}
	if p.StepTimeout < 0 {
		return provision.Config{}, fmt.Errorf("step timeout must not be negative")
	}

	cfg := provision.Config{
		Chars:       p.Chars,
		DeviceName:  p.Name,
		BaseUUID:    base,
		AppID:       p.AppID,
		Advertising: advert.Default(base, p.MinInterval, p.MaxInterval),
		Policy:      policy,
	}
	if _, err := cfg.Advertising.Bytes(); err != nil {
		return provision.Config{}, fmt.Errorf("invalid advertising data: %w", err)
	}
	return cfg, nil
}
