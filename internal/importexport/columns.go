// Package importexport converts devices to and from CSV and XLSX sheets.
package importexport

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type field int

const (
	fieldID field = iota
	fieldLab
	fieldBrand
	fieldModel
	fieldProcessor
	fieldRAM
	fieldStorage
	fieldStatus
	fieldLastCheck
	fieldSite
)

// ExportHeaders is the column order of exported sheets.
var ExportHeaders = []string{
	"Patrimônio",
	"Laboratório",
	"Sede",
	"Marca",
	"Modelo",
	"Processador",
	"RAM",
	"Armazenamento",
	"Status",
	"Última Verificação",
}

// TemplateHeaders is the import template: every column but the last check.
var TemplateHeaders = ExportHeaders[:len(ExportHeaders)-1]

// synonyms are matched against normalized headers (lowercase, no accents).
var synonyms = map[field][]string{
	fieldID:        {"patrimonio", "id", "serial"},
	fieldLab:       {"laboratorio", "lab", "local"},
	fieldSite:      {"sede", "site", "unidade"},
	fieldBrand:     {"marca", "brand"},
	fieldModel:     {"modelo", "model"},
	fieldProcessor: {"processador", "processor", "cpu"},
	fieldRAM:       {"ram", "memory", "memoria"},
	fieldStorage:   {"armazenamento", "storage", "hd", "ssd"},
	fieldStatus:    {"status"},
	fieldLastCheck: {"ultima verificacao", "lastcheck", "last check"},
}

// NormalizeHeader lowercases h, trims it and strips diacritics, so
// "Patrimônio" and "patrimonio" compare equal.
func NormalizeHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, h)
	if err != nil {
		out = h
	}
	out = strings.TrimPrefix(out, "\ufeff")
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// mapColumns returns the column index of every recognized field.
func mapColumns(header []string) map[field]int {
	cols := make(map[field]int)
	for i, h := range header {
		key := NormalizeHeader(h)
		for f, names := range synonyms {
			if _, seen := cols[f]; seen {
				continue
			}
			for _, n := range names {
				if key == n {
					cols[f] = i
					break
				}
			}
		}
	}
	return cols
}
