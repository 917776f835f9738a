package tracking

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// GeoResolver resolves a client IP to a coarse region string for
// event metadata.
type GeoResolver interface {
	Region(ip string) string
	Close() error
}

// MaxMindGeoResolver implements GeoResolver over a GeoLite2 database.
type MaxMindGeoResolver struct {
	reader *maxminddb.Reader
}

// NewMaxMindGeoResolver opens the GeoLite2 database at dbPath.
func NewMaxMindGeoResolver(dbPath string) (*MaxMindGeoResolver, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	return &MaxMindGeoResolver{reader: reader}, nil
}

type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
}

// Region returns "CC/Subdivision" for the IP, or "" when the lookup
// yields nothing useful.
func (m *MaxMindGeoResolver) Region(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	var rec geoRecord
	if err := m.reader.Lookup(parsed, &rec); err != nil {
		return ""
	}
	if rec.Country.ISOCode == "" {
		return ""
	}
	if len(rec.Subdivisions) > 0 {
		if name := rec.Subdivisions[0].Names["en"]; name != "" {
			return rec.Country.ISOCode + "/" + name
		}
	}
	return rec.Country.ISOCode
}

// Close closes the GeoIP database.
func (m *MaxMindGeoResolver) Close() error {
	if m.reader != nil {
		return m.reader.Close()
	}
	return nil
}
