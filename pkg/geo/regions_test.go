package geo

import "testing"

func TestInRegion(t *testing.T) {
	boston := Point{Lat: 42.3601, Lng: -71.0589}
	denver := Point{Lat: 39.7392, Lng: -104.9903}
	london := Point{Lat: 51.5074, Lng: -0.1278}

	tests := []struct {
		name string
		code string
		p    Point
		want bool
	}{
		{"InsideCountry", "US", boston, true},
		{"OutsideCountry", "US", london, false},
		{"InsideState", "US-MA", boston, true},
		{"OutsideState", "US-MA", denver, false},
		{"UnknownSubregionFallsBackToCountry", "US-XX", denver, true},
		{"UnknownSubregionFallsBackToCountry_Outside", "US-XX", london, false},
		{"UnknownRegionAlwaysContains", "ZZ", london, true},
		{"CountyFallsBackToState", "US-MA-017", boston, true},
		{"EmptyCodeContains", "", london, true},
		{"LowercaseCode", "us-ma", boston, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InRegion(tt.code, tt.p); got != tt.want {
				t.Errorf("InRegion(%q, %v) = %v, want %v", tt.code, tt.p, got, tt.want)
			}
		})
	}
}

func TestRegionBounds(t *testing.T) {
	if _, ok := RegionBounds("US"); !ok {
		t.Error("US bounds missing")
	}
	if _, ok := RegionBounds("US-CA"); !ok {
		t.Error("US-CA bounds missing")
	}
	if _, ok := RegionBounds("XX"); ok {
		t.Error("unexpected bounds for unknown region")
	}
}
