package views

import (
	"sort"

	"econsim-terminal/internal/models"
)

// Ownership classifies a location relative to the viewing company.
type Ownership string

const (
	Unclaimed     Ownership = "unclaimed"
	OwnedByViewer Ownership = "mine"
	OwnedByOther  Ownership = "claimed"
)

// OwnershipOf classifies loc for the viewing company. With no company
// selected every claimed location counts as someone else's.
func OwnershipOf(loc models.Location, companyID *int64) Ownership {
	switch {
	case !loc.Claimed():
		return Unclaimed
	case companyID != nil && *loc.ClaimedByCompanyID == *companyID:
		return OwnedByViewer
	default:
		return OwnedByOther
	}
}

// CanClaim reports whether the claim control is offered: the location is
// unclaimed and a company is selected.
func CanClaim(loc models.Location, companyID *int64) bool {
	return companyID != nil && !loc.Claimed()
}

// CanBuildExtractor reports whether the viewing company may build an
// extractor for goodID at loc: it holds the claim, a deposit of the good is
// present, and no active extraction site exists for that good.
func CanBuildExtractor(loc models.Location, goodID int64, companyID *int64) bool {
	if OwnershipOf(loc, companyID) != OwnedByViewer {
		return false
	}
	if !hasDeposit(loc, goodID) {
		return false
	}
	for _, site := range loc.ExtractionSites {
		if site.GoodID == goodID && site.Active {
			return false
		}
	}
	return true
}

// BuildableDeposits returns the deposits at loc for which the build control
// is offered, in deposit order.
func BuildableDeposits(loc models.Location, companyID *int64) []models.Deposit {
	out := make([]models.Deposit, 0, len(loc.Deposits))
	for _, d := range loc.Deposits {
		if CanBuildExtractor(loc, d.GoodID, companyID) {
			out = append(out, d)
		}
	}
	return out
}

// FindLocation looks a location up by id.
func FindLocation(locations []models.Location, id int64) (models.Location, bool) {
	for _, l := range locations {
		if l.ID == id {
			return l, true
		}
	}
	return models.Location{}, false
}

// LocationsByName returns the locations sorted by name, then id.
func LocationsByName(locations []models.Location) []models.Location {
	out := make([]models.Location, len(locations))
	copy(out, locations)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OwnedBy returns the locations claimed by a company.
func OwnedBy(locations []models.Location, companyID int64) []models.Location {
	var out []models.Location
	for _, l := range locations {
		if l.ClaimedByCompanyID != nil && *l.ClaimedByCompanyID == companyID {
			out = append(out, l)
		}
	}
	return out
}

func hasDeposit(loc models.Location, goodID int64) bool {
	for _, d := range loc.Deposits {
		if d.GoodID == goodID {
			return true
		}
	}
	return false
}
