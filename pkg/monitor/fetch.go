package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"pomon/internal/utils"
	"pomon/pkg/portal"
)

const (
	siteDropdownTimeout = 30 * time.Second
	siteSettleDelay     = 5 * time.Second
	fetchTimeout        = 30 * time.Second
)

// ErrUnauthorized marks a 401-equivalent from the portal API. The session
// has already been invalidated when this is returned; the next cycle
// re-authenticates.
var ErrUnauthorized = errors.New("portal rejected the bearer token")

type sessionInvalidator interface {
	Invalidate()
}

// Fetcher pulls the two raw datasets for a date range over an authenticated
// session.
type Fetcher struct {
	sessions sessionInvalidator
	log      Logger

	// settle is how long the portal gets to apply a site selection
	// server-side. There is nothing to synchronize on, the delay is a
	// compatibility concession.
	settle       time.Duration
	fetchTimeout time.Duration
}

func NewFetcher(sessions sessionInvalidator, log Logger) *Fetcher {
	if log == nil {
		log = nopLogger{}
	}
	return &Fetcher{
		sessions:     sessions,
		log:          log,
		settle:       siteSettleDelay,
		fetchTimeout: fetchTimeout,
	}
}

// SelectSite picks the configured site from the portal dropdown. Happens at
// most once per session; the session's flag guards repeats.
func (f *Fetcher) SelectSite(sess *Session, site portal.Site) error {
	if sess.SiteSelected {
		utils.Log.Debug("Site already selected in this session")
		return nil
	}
	if err := sess.Page.WaitVisible(portal.SiteDropdownSelector, siteDropdownTimeout); err != nil {
		return fmt.Errorf("waiting for site dropdown: %w", err)
	}
	if err := sess.Page.SelectByLabel(portal.SiteDropdownSelector, site.Label()); err != nil {
		f.reportSiteOptions(sess)
		return fmt.Errorf("selecting site %q: %w", site.Label(), err)
	}
	time.Sleep(f.settle)
	sess.SiteSelected = true
	f.log.Publish(KindInfo, fmt.Sprintf("Site selected: %q", site.Label()))
	return nil
}

// reportSiteOptions surfaces what the dropdown actually offers when the
// configured label could not be selected.
func (f *Fetcher) reportSiteOptions(sess *Session) {
	html, err := sess.Page.Content()
	if err != nil {
		return
	}
	labels, err := portal.SiteOptionLabels(html)
	if err != nil || len(labels) == 0 {
		return
	}
	f.log.Publish(KindWarn, "Available sites: "+strings.Join(labels, " | "))
}

// FetchDatasets retrieves the PO/truck records and the ancillary-fee records
// for the date range. The two requests run concurrently through the page's
// network stack, each with its own timeout budget, and both must finish
// before the result is produced. A 401 on either invalidates the session
// before the error is returned.
func (f *Fetcher) FetchDatasets(ctx context.Context, sess *Session, site portal.Site, startDate, endDate string) ([]TruckRecord, []AncillaryRecord, error) {
	start, err := portal.FormatAPIDate(startDate)
	if err != nil {
		return nil, nil, err
	}
	end, err := portal.FormatAPIDate(endDate)
	if err != nil {
		return nil, nil, err
	}

	headers := map[string]string{
		"Authorization": "Bearer " + sess.Token,
		"Content-Type":  "application/json",
	}

	utils.Log.Debug("Fetching PO details and ancillary data")

	var wg sync.WaitGroup
	var poResp, ancResp *portal.Response
	var poErr, ancErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		poResp, poErr = sess.Page.Get(site.POsURL(start, end), headers, f.fetchTimeout)
	}()
	go func() {
		defer wg.Done()
		ancResp, ancErr = sess.Page.Get(site.AncillaryItemsURL(start, end), headers, f.fetchTimeout)
	}()
	wg.Wait()

	if poErr != nil {
		return nil, nil, fmt.Errorf("fetching PO details: %w", poErr)
	}
	if ancErr != nil {
		return nil, nil, fmt.Errorf("fetching ancillary items: %w", ancErr)
	}

	if !ok(poResp.Status) || !ok(ancResp.Status) {
		if poResp.Status == 401 || ancResp.Status == 401 {
			f.log.Publish(KindWarn, "Token possibly expired (401). Invalidating session.")
			f.sessions.Invalidate()
			return nil, nil, fmt.Errorf("%w (PO status %d, ancillary status %d)", ErrUnauthorized, poResp.Status, ancResp.Status)
		}
		return nil, nil, fmt.Errorf("API fetch error: PO status %d, ancillary status %d", poResp.Status, ancResp.Status)
	}

	trucks := parseTruckRecords(poResp.Body)
	ancillaries := parseAncillaryRecords(ancResp.Body)
	f.log.Publish(KindInfo, fmt.Sprintf("Fetched %d POs, %d ancillary items.", len(trucks), len(ancillaries)))
	return trucks, ancillaries, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}

// parseTruckRecords reads the PO dataset. Rows without a PO number or a
// truck id carry nothing usable and are skipped; non-numeric pallet counts
// read as zero.
func parseTruckRecords(body []byte) []TruckRecord {
	var out []TruckRecord
	gjson.ParseBytes(body).ForEach(func(_, item gjson.Result) bool {
		po := strings.TrimSpace(item.Get("poNumber").String())
		truckID := item.Get("truckId").String()
		if po == "" || truckID == "" {
			return true
		}
		out = append(out, TruckRecord{
			PONumber:    po,
			TruckID:     truckID,
			CreatedDate: item.Get("createdDate").String(),
			WhiteIn:     int(item.Get("palletWhiteInCount").Int()),
			ChepIn:      int(item.Get("palletChepInCount").Int()),
			PecoIn:      int(item.Get("palletPecoInCount").Int()),
			IgpsIn:      int(item.Get("palletIgpsInCount").Int()),
		})
		return true
	})
	return out
}

// parseAncillaryRecords reads the ancillary dataset. The fee kind is kept
// raw; the detector decides which kinds count.
func parseAncillaryRecords(body []byte) []AncillaryRecord {
	var out []AncillaryRecord
	gjson.ParseBytes(body).ForEach(func(_, item gjson.Result) bool {
		po := strings.TrimSpace(item.Get("pO_Number").String())
		if po == "" {
			return true
		}
		out = append(out, AncillaryRecord{
			PONumber: po,
			FeeKind:  item.Get("additional_Fee_Name").String(),
			Quantity: item.Get("quantity").Float(),
		})
		return true
	})
	return out
}
