package slicer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// maxVLAN is the largest 802.1Q VLAN id.
const maxVLAN = 4095

// ExpandVLANs expands a VLAN list such as "10,20,100-110" into sorted,
// de-duplicated VLAN ids.
func ExpandVLANs(spec string) ([]uint16, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	var result []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start value in range %s: %w", part, err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end value in range %s: %w", part, err)
			}
			if start > end {
				return nil, fmt.Errorf("start value %d greater than end value %d in range %s", start, end, part)
			}
			if start < 0 || end > maxVLAN {
				return nil, fmt.Errorf("range %s out of range 0-%d", part, maxVLAN)
			}
			for i := start; i <= end; i++ {
				result = append(result, i)
			}
			continue
		}

		val, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid value: %s", part)
		}
		result = append(result, val)
	}

	sort.Ints(result)
	out := make([]uint16, 0, len(result))
	for i, v := range result {
		if v < 0 || v > maxVLAN {
			return nil, fmt.Errorf("vlan %d out of range 0-%d", v, maxVLAN)
		}
		if i > 0 && result[i-1] == v {
			continue
		}
		out = append(out, uint16(v))
	}
	return out, nil
}
