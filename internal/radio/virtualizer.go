// Package radio creates and removes the AP-mode virtual interface that lets
// one physical radio act as client and access point at the same time.
package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"grimm.is/repeater/internal/logging"
	"grimm.is/repeater/internal/network"
)

// ErrAlreadyExists is returned when a virtual interface is already held for
// the physical radio. It indicates a sequencing bug and is never retried.
var ErrAlreadyExists = errors.New("virtual interface already exists for radio")

// maxIfaceName is IFNAMSIZ minus the trailing NUL.
const maxIfaceName = 15

// Handle identifies a virtual AP interface derived from a physical radio.
type Handle struct {
	Physical string `json:"physical"`
	Name     string `json:"name"`
}

func (h Handle) String() string {
	return h.Name + "@" + h.Physical
}

// InterfaceName derives the virtual interface name, e.g. wlan0_ap0.
func InterfaceName(physical, suffix string) string {
	return physical + "_" + suffix
}

// Virtualizer creates AP-mode virtual interfaces with iw and tracks which
// physical radios already carry one.
type Virtualizer struct {
	nl     network.Netlinker
	cmd    network.CommandExecutor
	logger *logging.Logger

	mu   sync.Mutex
	held map[string]Handle
}

// NewVirtualizer creates a Virtualizer. Nil dependencies select the real
// implementations.
func NewVirtualizer(nl network.Netlinker, cmd network.CommandExecutor, logger *logging.Logger) *Virtualizer {
	if nl == nil {
		nl = network.DefaultNetlinker
	}
	if cmd == nil {
		cmd = network.DefaultCommandExecutor
	}
	return &Virtualizer{
		nl:     nl,
		cmd:    cmd,
		logger: logging.OrDefault(logger).WithComponent("radio"),
		held:   make(map[string]Handle),
	}
}

// Create adds an AP-mode interface named <physical>_<suffix>.
// A device of that name left behind by an earlier run is adopted.
func (v *Virtualizer) Create(ctx context.Context, physical, suffix string) (Handle, error) {
	if physical == "" || suffix == "" {
		return Handle{}, fmt.Errorf("radio and suffix are required")
	}
	h := Handle{Physical: physical, Name: InterfaceName(physical, suffix)}
	if len(h.Name) > maxIfaceName {
		return Handle{}, fmt.Errorf("interface name %q exceeds %d bytes", h.Name, maxIfaceName)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.held[physical]; ok {
		return Handle{}, fmt.Errorf("%s: %w", existing, ErrAlreadyExists)
	}

	if _, err := v.nl.LinkByName(h.Name); err == nil {
		v.logger.Warn("adopting existing virtual interface", "iface", h.Name, "radio", physical)
		v.held[physical] = h
		return h, nil
	} else if !network.IsLinkNotFound(err) {
		return Handle{}, fmt.Errorf("probe %s: %w", h.Name, err)
	}

	if _, err := v.cmd.RunCommand(ctx, "iw", "dev", physical, "interface", "add", h.Name, "type", "__ap"); err != nil {
		return Handle{}, fmt.Errorf("create virtual interface %s: %w", h.Name, err)
	}

	if _, err := v.nl.LinkByName(h.Name); err != nil {
		return Handle{}, fmt.Errorf("virtual interface %s not visible after creation: %w", h.Name, err)
	}

	v.held[physical] = h
	v.logger.Info("created virtual interface", "iface", h.Name, "radio", physical)
	return h, nil
}

// Destroy removes the virtual interface. A missing device is not an error.
func (v *Virtualizer) Destroy(ctx context.Context, h Handle) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.nl.LinkByName(h.Name); err != nil {
		if network.IsLinkNotFound(err) {
			delete(v.held, h.Physical)
			return nil
		}
		return fmt.Errorf("probe %s: %w", h.Name, err)
	}

	if _, err := v.cmd.RunCommand(ctx, "iw", "dev", h.Name, "del"); err != nil {
		return fmt.Errorf("delete virtual interface %s: %w", h.Name, err)
	}

	delete(v.held, h.Physical)
	v.logger.Info("deleted virtual interface", "iface", h.Name)
	return nil
}

// Exists reports whether the device behind h is present.
func (v *Virtualizer) Exists(ctx context.Context, h Handle) (bool, error) {
	_, err := v.nl.LinkByName(h.Name)
	if err == nil {
		return true, nil
	}
	if network.IsLinkNotFound(err) {
		return false, nil
	}
	return false, err
}
