package pattern

import (
	"regexp"
	"strconv"
)

// RegionKeys lists the region parameters in their canonical order.
var RegionKeys = []string{"x", "y", "width", "height"}

// regionParam matches literal integer assignments such as "x: 10",
// "width = -5" or `"height": 300`.
var regionParam = regexp.MustCompile(`\b(x|y|width|height)["']?\s*[:=]\s*(-?\d+)`)

// ExtractRegion pulls literal x, y, width and height values from a line.
// Keys may appear in any order; the first occurrence of each wins. Returns
// nil when none of the keys carry a literal integer.
func ExtractRegion(line string) map[string]int {
	var params map[string]int
	for _, m := range regionParam.FindAllStringSubmatch(line, -1) {
		key := m[1]
		if _, seen := params[key]; seen {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			// Overflowing literals are treated as absent.
			continue
		}
		if params == nil {
			params = make(map[string]int, len(RegionKeys))
		}
		params[key] = n
	}
	return params
}

// MissingRegionKeys returns the region keys absent from params, in
// canonical order.
func MissingRegionKeys(params map[string]int) []string {
	var missing []string
	for _, k := range RegionKeys {
		if _, ok := params[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}
