// Package portal holds everything tied to the Capstone logistics portal
// itself: endpoint URLs, page selectors, the supported site table, and the
// browser automation driver used to reach it.
package portal

import (
	"fmt"
	"time"
)

const (
	LoginURL = "https://apex.capstonelogistics.com/"

	UsernameSelector     = "#Username"
	PasswordSelector     = "#Password"
	LoginButtonSelector  = `input[type="submit"][value="Log in"]`
	SiteDropdownSelector = "select#ddlSites"

	// The portal never returns the bearer token from the login flow. It shows
	// up in the Authorization header of the first request the logged-in page
	// makes against this endpoint.
	TokenRequestURLFragment = "siteadminsso.capstonelogistics.com/api/user/byusername/"

	APIBaseURL = "https://siteadminsso.capstonelogistics.com/api"
)

// Site is one of the supported portal sites. Adding a site means adding an
// entry to the table below, nothing else.
type Site int

const (
	SiteDry Site = iota
	SitePerishable
)

type siteInfo struct {
	Tag       string
	Label     string
	SubdeptID int
}

var sites = map[Site]siteInfo{
	SiteDry:        {"dry", "206 - ADUSA DC7 GREENCASTLE PA DRY (86)", 86},
	SitePerishable: {"perishable", "206 - ADUSA DC7 GREENCASTLE PA PER (85)", 85},
}

// ParseSite maps the wire tag ("dry", "perishable") to a Site.
func ParseSite(tag string) (Site, error) {
	for s, info := range sites {
		if info.Tag == tag {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown site type %q", tag)
}

func (s Site) String() string {
	return sites[s].Tag
}

// Label is the visible text of the site's option in the portal dropdown.
func (s Site) Label() string {
	return sites[s].Label
}

// SubdeptID is the numeric sub-department identifier the dataset endpoints
// are keyed on.
func (s Site) SubdeptID() int {
	return sites[s].SubdeptID
}

// POsURL is the PO/truck detail endpoint for a date range. Dates must
// already be in API form (see FormatAPIDate).
func (s Site) POsURL(start, end string) string {
	return fmt.Sprintf("%s/subdept/%d/pos/%s/%s", APIBaseURL, s.SubdeptID(), start, end)
}

// AncillaryItemsURL is the ancillary fee endpoint for a date range.
func (s Site) AncillaryItemsURL(start, end string) string {
	return fmt.Sprintf("%s/subdept/%d/ancillaryItems/%s/%s", APIBaseURL, s.SubdeptID(), start, end)
}

// FormatAPIDate converts a calendar date in YYYY-MM-DD form into the
// MM-DD-YYYY form the portal API expects. Anything that is not a valid
// zero-padded calendar date is rejected so a bad date never reaches the
// network.
func FormatAPIDate(date string) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", date, err)
	}
	return t.Format("01-02-2006"), nil
}
