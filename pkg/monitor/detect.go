package monitor

// Detect joins the two datasets, computes the discrepancy predicate, and
// returns one Alert per offending PO not yet in alerted. The alerted set is
// mutated in place so repeated calls within one run stay idempotent.
// Emission order is unspecified.
func Detect(trucks []TruckRecord, ancillaries []AncillaryRecord, alerted map[string]bool) []Alert {
	type truckRef struct {
		truckID     string
		createdDate string
	}

	truckTotals := make(map[string]int)
	poTruck := make(map[string]truckRef)
	for _, t := range trucks {
		created := t.CreatedDate
		if created == "" {
			created = "N/A"
		}
		// A PO appearing on multiple truck records keeps the last one seen
		// in input order.
		poTruck[t.PONumber] = truckRef{truckID: t.TruckID, createdDate: created}
		truckTotals[t.TruckID] += t.PalletTotal()
	}

	pos := make(map[string]*ProcessedPO)
	for _, a := range ancillaries {
		p := pos[a.PONumber]
		if p == nil {
			p = &ProcessedPO{PONumber: a.PONumber, CreatedDate: "N/A"}
			pos[a.PONumber] = p
		}
		switch a.FeeKind {
		case FeeRestack:
			p.Restacks += a.Quantity
		case FeeBadwood:
			p.Badwoods += a.Quantity
		case FeeUpstack:
			p.Upstacks += a.Quantity
		}
	}

	for po, ref := range poTruck {
		p := pos[po]
		if p == nil {
			p = &ProcessedPO{PONumber: po}
			pos[po] = p
		}
		p.CreatedDate = ref.createdDate
		p.PalletsIn = truckTotals[ref.truckID]
	}

	var alerts []Alert
	for po, p := range pos {
		total := p.Badwoods + p.Restacks + p.Upstacks
		if total <= float64(p.PalletsIn) || alerted[po] {
			continue
		}
		alerted[po] = true
		alerts = append(alerts, Alert{
			PONumber:       po,
			CreatedDate:    p.CreatedDate,
			AncillaryTotal: total,
			PalletsIn:      p.PalletsIn,
			Diff:           total - float64(p.PalletsIn),
		})
	}
	return alerts
}
