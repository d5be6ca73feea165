package geo

import (
	"strings"

	"github.com/paulmach/orb"
)

// regionBounds maps eBird region codes to rough bounding boxes
// (orb.Bound is min/max in lng/lat order). The table is deliberately
// sparse: it exists to flag wildly out-of-region coordinates, not to settle
// border disputes. Codes without an entry fall back to the parent country,
// then to "contained".
var regionBounds = map[string]orb.Bound{
	// Countries
	"US": bound(24.396308, -125.0, 49.384358, -66.93457),
	"CA": bound(41.676556, -141.00187, 83.110626, -52.636291),
	"MX": bound(14.532866, -118.453949, 32.716759, -86.703392),
	"GB": bound(49.959999, -7.57216, 58.635, 1.68153),
	"IE": bound(51.669301, -10.47472, 55.131622, -6.002),
	"FR": bound(41.37131, -5.142222, 51.092804, 9.561556),
	"DE": bound(47.270111, 5.866315, 55.058347, 15.041932),
	"ES": bound(36.000104, -9.392884, 43.748337, 3.039484),
	"PT": bound(36.96125, -9.500527, 42.154311, -6.189159),
	"IT": bound(36.619987, 6.7499552, 47.115393, 18.480247),
	"NL": bound(50.750384, 3.314971, 53.555002, 7.092053),
	"AU": bound(-43.634597, 113.338953, -10.668186, 153.569469),
	"NZ": bound(-47.289999, 166.509144, -34.4507, 178.517094),
	"JP": bound(24.396308, 122.93457, 45.551483, 153.986672),
	"IN": bound(6.754892, 68.162386, 35.674545, 97.395561),
	"BR": bound(-33.768378, -73.985535, 5.244486, -34.729993),
	"AR": bound(-55.05, -73.560562, -21.780813, -53.637481),
	"CL": bound(-55.97, -75.644693, -17.507553, -66.95992),
	"PE": bound(-18.347975, -81.410943, -0.036988, -68.665124),
	"EC": bound(-4.990625, -81.08498, 1.455371, -75.184586),
	"CO": bound(-4.297472, -79.00835, 12.458457, -66.876326),
	"CR": bound(8.032975, -85.950623, 11.217119, -82.546196),
	"PA": bound(7.197906, -83.052241, 9.647779, -77.174112),
	"ZA": bound(-34.839828, 16.344977, -22.126612, 32.895120),
	"KE": bound(-4.676805, 33.893569, 5.506, 41.855083),

	// Subnational regions birders commonly query
	"US-CA": bound(32.534156, -124.409591, 42.009518, -114.131211),
	"US-TX": bound(25.837377, -106.645646, 36.500704, -93.508292),
	"US-AZ": bound(31.332177, -114.81651, 37.00426, -109.045223),
	"US-FL": bound(24.523096, -87.634938, 31.000888, -80.031362),
	"US-NY": bound(40.496103, -79.762152, 45.01585, -71.856214),
	"US-MA": bound(41.237964, -73.508142, 42.886589, -69.928393),
	"US-WA": bound(45.543541, -124.848974, 49.002494, -116.915989),
	"US-OR": bound(41.991794, -124.566244, 46.292035, -116.463504),
	"US-CO": bound(36.992426, -109.060253, 41.003444, -102.041524),
	"US-OH": bound(38.403202, -84.820159, 41.977523, -80.518693),
	"US-MI": bound(41.696118, -90.418136, 48.2388, -82.413474),
	"US-ME": bound(42.977764, -71.083924, 47.459686, -66.949895),
	"US-NC": bound(33.842316, -84.321869, 36.588117, -75.460621),
	"US-MN": bound(43.499356, -97.239209, 49.384358, -89.491739),
	"CA-ON": bound(41.676556, -95.156252, 56.931393, -74.343262),
	"CA-BC": bound(48.224431, -139.06, 60.0, -114.03),
}

func bound(minLat, minLng, maxLat, maxLng float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{minLng, minLat},
		Max: orb.Point{maxLng, maxLat},
	}
}

// RegionBounds returns the bounding box for an eBird region code, trying the
// exact code first and then each parent in turn ("US-MA-017" falls back to
// "US-MA", then "US").
func RegionBounds(code string) (orb.Bound, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for code != "" {
		if b, ok := regionBounds[code]; ok {
			return b, true
		}
		idx := strings.LastIndex(code, "-")
		if idx < 0 {
			break
		}
		code = code[:idx]
	}
	return orb.Bound{}, false
}

// InRegion reports whether a coordinate falls inside the region's bounding
// box. Unknown regions are treated as containing: the table is advisory and
// a missing entry must never disqualify sightings.
func InRegion(code string, p Point) bool {
	if code == "" {
		return true
	}
	b, ok := RegionBounds(code)
	if !ok {
		return true
	}
	return b.Contains(orb.Point{p.Lng, p.Lat})
}
