package power

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shakegestures/internal/gesture"
)

// DefaultBacklightRoot is the sysfs class directory for backlight devices.
const DefaultBacklightRoot = "/sys/class/backlight"

// bl_power values, see FB_BLANK_* in linux/fb.h.
const (
	blankUnblank   = "0"
	blankPowerdown = "4"
)

// Backlight is a gesture.Display driven through a backlight's bl_power
// attribute.
type Backlight struct {
	dir string
}

// NewBacklight returns the backlight device under root. An empty device
// selects the first one in lexical order.
func NewBacklight(root, device string) (*Backlight, error) {
	if root == "" {
		root = DefaultBacklightRoot
	}
	if device == "" {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("list backlights: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("no backlight devices under %s", root)
		}
		sort.Strings(names)
		device = names[0]
	}

	dir := filepath.Join(root, device)
	if _, err := os.Stat(filepath.Join(dir, "bl_power")); err != nil {
		return nil, fmt.Errorf("backlight %s: %w", device, err)
	}
	return &Backlight{dir: dir}, nil
}

// Device returns the backlight device name.
func (b *Backlight) Device() string {
	return filepath.Base(b.dir)
}

// IsInteractive reports whether the panel is powered.
func (b *Backlight) IsInteractive(context.Context) (bool, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, "bl_power"))
	if err != nil {
		return false, fmt.Errorf("read bl_power: %w", err)
	}
	return strings.TrimSpace(string(data)) == blankUnblank, nil
}

func (b *Backlight) Sleep(context.Context) error {
	return b.write(blankPowerdown)
}

func (b *Backlight) Wake(context.Context) error {
	return b.write(blankUnblank)
}

func (b *Backlight) write(v string) error {
	f, err := os.OpenFile(filepath.Join(b.dir, "bl_power"), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open bl_power: %w", err)
	}
	if _, err := f.WriteString(v + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write bl_power: %w", err)
	}
	return f.Close()
}

var _ gesture.Display = (*Backlight)(nil)
