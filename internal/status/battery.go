package status

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultPowerSupplyRoot is where Linux exposes power supplies.
const DefaultPowerSupplyRoot = "/sys/class/power_supply"

// SysfsBattery reads the first battery under a power_supply directory.
type SysfsBattery struct {
	Root string
}

// Battery reads capacity and status of the first supply whose type is
// "Battery".
func (s SysfsBattery) Battery(ctx context.Context) (Battery, error) {
	root := s.Root
	if root == "" {
		root = DefaultPowerSupplyRoot
	}
	if err := ctx.Err(); err != nil {
		return Battery{}, err
	}

	supplies, err := filepath.Glob(filepath.Join(root, "*"))
	if err != nil {
		return Battery{}, err
	}
	sort.Strings(supplies)

	for _, dir := range supplies {
		if readAttr(dir, "type") != "Battery" {
			continue
		}
		raw := readAttr(dir, "capacity")
		percent, err := strconv.Atoi(raw)
		if err != nil {
			return Battery{}, fmt.Errorf("battery %s: bad capacity %q", filepath.Base(dir), raw)
		}
		return Battery{
			Percent:  min(max(percent, 0), 100),
			Charging: readAttr(dir, "status") == "Charging",
		}, nil
	}
	return Battery{}, ErrNoBattery
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
