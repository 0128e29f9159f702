package portal

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SiteOptionLabels extracts the visible labels of the site dropdown from a
// page's HTML. Used for diagnostics when selecting the configured site
// fails: the operator gets to see what the portal actually offers.
func SiteOptionLabels(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var labels []string
	doc.Find(SiteDropdownSelector + " option").Each(func(_ int, sel *goquery.Selection) {
		label := strings.TrimSpace(sel.Text())
		if label != "" {
			labels = append(labels, label)
		}
	})
	return labels, nil
}
