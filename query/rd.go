package query

import "math"

// Rijksdriehoek (EPSG:28992) to WGS84 using the Schreutelkamp / Strang van
// Hees polynomial approximation around Amersfoort.
const (
	rdX0   = 155000.0
	rdY0   = 463000.0
	rdPhi0 = 52.15517440
	rdLam0 = 5.38720621
)

type rdTerm struct {
	p, q int
	k    float64
}

var rdLatTerms = []rdTerm{
	{0, 1, 3235.65389},
	{2, 0, -32.58297},
	{0, 2, -0.24750},
	{2, 1, -0.84978},
	{0, 3, -0.06550},
	{2, 2, -0.01709},
	{1, 0, -0.00738},
	{4, 0, 0.00530},
	{2, 3, -0.00039},
	{4, 1, 0.00033},
	{1, 1, -0.00012},
}

var rdLonTerms = []rdTerm{
	{1, 0, 5260.52916},
	{1, 1, 105.94684},
	{1, 2, 2.45656},
	{3, 0, -0.81885},
	{1, 3, 0.05594},
	{3, 1, -0.05607},
	{0, 1, 0.01199},
	{3, 2, -0.00256},
	{1, 4, 0.00128},
	{0, 2, 0.00022},
	{2, 0, -0.00022},
	{5, 0, 0.00026},
}

// InRDBounds is the detection heuristic for RD New coordinates.
func InRDBounds(x, y float64) bool {
	return 0 < x && x < 300000 && 300000 < y && y < 650000
}

// RDToWGS84 converts RD New x/y metres to longitude and latitude in degrees.
func RDToWGS84(x, y float64) (lon, lat float64) {
	dx := (x - rdX0) * 1e-5
	dy := (y - rdY0) * 1e-5

	var sumLat, sumLon float64
	for _, t := range rdLatTerms {
		sumLat += t.k * math.Pow(dx, float64(t.p)) * math.Pow(dy, float64(t.q))
	}
	for _, t := range rdLonTerms {
		sumLon += t.k * math.Pow(dx, float64(t.p)) * math.Pow(dy, float64(t.q))
	}

	return rdLam0 + sumLon/3600, rdPhi0 + sumLat/3600
}
