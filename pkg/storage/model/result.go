package model

import (
	"regexp"
	"sort"

	"github.com/denysvitali/odi-invoices/pkg/models"
)

var idRegexp = regexp.MustCompile(`^[0-9A-Za-z-]{1,64}$`)

// ValidId reports whether id is safe to use as an object or file name.
func ValidId(id string) bool {
	return idRegexp.MatchString(id)
}

// SortRecentFirst orders results by SavedAt, newest first, then by Id.
func SortRecentFirst(results []models.SavedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].SavedAt.Equal(results[j].SavedAt) {
			return results[i].SavedAt.After(results[j].SavedAt)
		}
		return results[i].Id < results[j].Id
	})
}
