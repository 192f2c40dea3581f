// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package enrich

import (
	"regexp"
	"sort"
	"strings"
)

// gazetteerEntry is one known place with reference coordinates.
type gazetteerEntry struct {
	name string
	lat  float64
	lon  float64
	re   *regexp.Regexp
}

// gazetteer lists places the fallback extractor recognizes. Coordinates
// double as the offline geocoding source. Matching is case-insensitive on
// word boundaries.
var gazetteer = buildGazetteer(map[string][2]float64{
	"Brussels":       {50.8503, 4.3517},
	"Madrid":         {40.4168, -3.7038},
	"Paris":          {48.8566, 2.3522},
	"London":         {51.5074, -0.1278},
	"Berlin":         {52.5200, 13.4050},
	"Rome":           {41.9028, 12.4964},
	"Vienna":         {48.2082, 16.3738},
	"Warsaw":         {52.2297, 21.0122},
	"Kyiv":           {50.4501, 30.5234},
	"Istanbul":       {41.0082, 28.9784},
	"Athens":         {37.9838, 23.7275},
	"Cairo":          {30.0444, 31.2357},
	"Lagos":          {6.5244, 3.3792},
	"Abuja":          {9.0765, 7.3986},
	"Nairobi":        {-1.2921, 36.8219},
	"Johannesburg":   {-26.2041, 28.0473},
	"Addis Ababa":    {9.0320, 38.7469},
	"Khartoum":       {15.5007, 32.5599},
	"Mogadishu":      {2.0469, 45.3182},
	"Bamako":         {12.6392, -8.0029},
	"Ouagadougou":    {12.3714, -1.5197},
	"Niamey":         {13.5116, 2.1254},
	"Dakar":          {14.7167, -17.4677},
	"Accra":          {5.6037, -0.1870},
	"Kinshasa":       {-4.4419, 15.2663},
	"Juba":           {4.8594, 31.5713},
	"Tripoli":        {32.8872, 13.1913},
	"Tunis":          {36.8065, 10.1815},
	"Algiers":        {36.7538, 3.0588},
	"Damascus":       {33.5138, 36.2765},
	"Beirut":         {33.8938, 35.5018},
	"Baghdad":        {33.3152, 44.3661},
	"Tehran":         {35.6892, 51.3890},
	"Kabul":          {34.5553, 69.2075},
	"Islamabad":      {33.6844, 73.0479},
	"Amman":          {31.9454, 35.9284},
	"Jerusalem":      {31.7683, 35.2137},
	"Riyadh":         {24.7136, 46.6753},
	"Sanaa":          {15.3694, 44.1910},
	"Delhi":          {28.7041, 77.1025},
	"Mumbai":         {19.0760, 72.8777},
	"Dhaka":          {23.8103, 90.4125},
	"Beijing":        {39.9042, 116.4074},
	"Tokyo":          {35.6762, 139.6503},
	"Seoul":          {37.5665, 126.9780},
	"Jakarta":        {-6.2088, 106.8456},
	"Manila":         {14.5995, 120.9842},
	"Bangkok":        {13.7563, 100.5018},
	"Yangon":         {16.8661, 96.1951},
	"Sydney":         {-33.8688, 151.2093},
	"Washington":     {38.9072, -77.0369},
	"New York":       {40.7128, -74.0060},
	"Mexico City":    {19.4326, -99.1332},
	"Bogota":         {4.7110, -74.0721},
	"Lima":           {-12.0464, -77.0428},
	"Santiago":       {-33.4489, -70.6693},
	"Buenos Aires":   {-34.6037, -58.3816},
	"Sao Paulo":      {-23.5505, -46.6333},
	"Caracas":        {10.4806, -66.9036},
	"Port-au-Prince": {18.5944, -72.3074},
})

func buildGazetteer(places map[string][2]float64) []gazetteerEntry {
	entries := make([]gazetteerEntry, 0, len(places))
	for name, coords := range places {
		entries = append(entries, gazetteerEntry{
			name: name,
			lat:  coords[0],
			lon:  coords[1],
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`),
		})
	}
	// Stable order keeps repeated enrichment byte-identical.
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries
}

// LookupCoordinates returns reference coordinates for a known place name.
func LookupCoordinates(name string) (lat, lon float64, ok bool) {
	needle := strings.TrimSpace(strings.ToLower(name))
	for i := range gazetteer {
		if strings.ToLower(gazetteer[i].name) == needle {
			return gazetteer[i].lat, gazetteer[i].lon, true
		}
	}
	return 0, 0, false
}

// matchGazetteer returns every known place mentioned in the text, in
// gazetteer-stable order.
func matchGazetteer(text string) []string {
	var found []string
	for i := range gazetteer {
		if gazetteer[i].re.MatchString(text) {
			found = append(found, gazetteer[i].name)
		}
	}
	return found
}
