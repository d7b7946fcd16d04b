package models

// Deposit is a finite resource at a location.
type Deposit struct {
	GoodID          int64  `json:"good_id"`
	GoodName        string `json:"good_name"`
	RemainingAmount int64  `json:"remaining_amount"`
}

// ExtractionSite is an extractor operated by a company at a location.
type ExtractionSite struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	CompanyName string    `json:"company_name,omitempty"`
	LocationID  int64     `json:"location_id,omitempty"`
	GoodID      int64     `json:"good_id"`
	GoodName    string    `json:"good_name,omitempty"`
	RatePerHour int64     `json:"rate_per_hour"`
	Active      bool      `json:"active"`
	CreatedAt   Timestamp `json:"created_at,omitempty"`
}

// Location is a claimable point on the map.
type Location struct {
	ID                   int64            `json:"id"`
	Name                 string           `json:"name"`
	X                    float64          `json:"x"`
	Y                    float64          `json:"y"`
	Biome                string           `json:"biome,omitempty"`
	Deposits             []Deposit        `json:"deposits"`
	ExtractionSites      []ExtractionSite `json:"extraction_sites"`
	ClaimedByCompanyID   *int64           `json:"claimed_by_company_id"`
	ClaimedByCompanyName *string          `json:"claimed_by_company_name,omitempty"`
}

// Claimed reports whether any company holds the location.
func (l Location) Claimed() bool {
	return l.ClaimedByCompanyID != nil
}

// WorldMap is the body of the map endpoint.
type WorldMap struct {
	Locations []Location `json:"locations"`
}

// ClaimAck is returned by the claim endpoint.
type ClaimAck struct {
	Status     string `json:"status"`
	LocationID int64  `json:"location_id"`
}

// ExtractionSiteRequest is the body of a build-extractor call.
type ExtractionSiteRequest struct {
	LocationID  int64 `json:"location_id"`
	GoodID      int64 `json:"good_id"`
	RatePerHour int64 `json:"rate_per_hour"`
}
