// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package dossier associates global events with per-organization tracked
// subjects and maintains each dossier's derived statistics.
package dossier

import "strings"

// publicOfficials is the gazetteer of designated public officials. Person
// dossiers are restricted to names on this list; the API rejects others at
// creation and the matcher drops them as a second line of defense.
//
// TODO: load from a reviewed data file once the officials list has an owner.
var publicOfficials = map[string]struct{}{
	"antónio guterres":      {},
	"antonio guterres":      {},
	"volker türk":           {},
	"volker turk":           {},
	"filippo grandi":        {},
	"tedros adhanom":        {},
	"amy pope":              {},
	"ursula von der leyen":  {},
	"antónio costa":         {},
	"antonio costa":         {},
	"kaja kallas":           {},
	"roberta metsola":       {},
	"moussa faki":           {},
	"william ruto":          {},
	"bola tinubu":           {},
	"cyril ramaphosa":       {},
	"abiy ahmed":            {},
	"abdel fattah el-sisi":  {},
	"recep tayyip erdoğan":  {},
	"recep tayyip erdogan":  {},
	"benjamin netanyahu":    {},
	"mahmoud abbas":         {},
	"narendra modi":         {},
	"prabowo subianto":      {},
	"ferdinand marcos jr":   {},
	"sheikh hasina":         {},
	"pedro sánchez":         {},
	"pedro sanchez":         {},
	"emmanuel macron":       {},
	"keir starmer":          {},
	"friedrich merz":        {},
	"giorgia meloni":        {},
	"donald tusk":           {},
	"mark carney":           {},
	"claudia sheinbaum":     {},
	"gustavo petro":         {},
	"luiz inácio lula da silva": {},
	"javier milei":          {},
}

// IsPublicOfficial reports whether the name is on the designated officials
// gazetteer. Matching is case-insensitive.
func IsPublicOfficial(name string) bool {
	_, ok := publicOfficials[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
