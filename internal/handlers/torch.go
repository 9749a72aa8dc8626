package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultLEDRoot is the sysfs class directory for LEDs.
const DefaultLEDRoot = "/sys/class/leds"

// Torch toggles a sysfs LED between off and its maximum brightness.
type Torch struct {
	dir string
}

// NewTorch returns the LED named led under root.
func NewTorch(root, led string) (*Torch, error) {
	if root == "" {
		root = DefaultLEDRoot
	}
	if led == "" {
		return nil, fmt.Errorf("torch: no LED name")
	}
	dir := filepath.Join(root, led)
	if _, err := os.Stat(filepath.Join(dir, "brightness")); err != nil {
		return nil, fmt.Errorf("torch %s: %w", led, err)
	}
	return &Torch{dir: dir}, nil
}

// Toggle flips the LED: lit goes dark, dark goes to max_brightness.
func (t *Torch) Toggle(context.Context) error {
	cur, err := t.read("brightness")
	if err != nil {
		return err
	}
	if cur > 0 {
		return t.write(0)
	}

	full, err := t.read("max_brightness")
	if err != nil || full <= 0 {
		full = 1
	}
	return t.write(full)
}

// On reports whether the LED is lit.
func (t *Torch) On() (bool, error) {
	cur, err := t.read("brightness")
	return cur > 0, err
}

func (t *Torch) read(attr string) (int, error) {
	data, err := os.ReadFile(filepath.Join(t.dir, attr))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", attr, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", attr, err)
	}
	return v, nil
}

func (t *Torch) write(v int) error {
	f, err := os.OpenFile(filepath.Join(t.dir, "brightness"), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open brightness: %w", err)
	}
	if _, err := f.WriteString(strconv.Itoa(v) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write brightness: %w", err)
	}
	return f.Close()
}
