package hunk

import "github.com/launchdarkly/go-jsonstream/v3/jwriter"

// BanksJson populates a json object with the hunk totals, the current
// role assignment, and each bank's cursors.
func (h *Hunk) BanksJson(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(h.total)
	json.Name("RemainingBytes").Int(h.MemoryRemaining())

	permanentBank := "low"
	if h.permanent == &h.high {
		permanentBank = "high"
	}
	json.Name("PermanentBank").String(permanentBank)

	banks := []struct {
		name string
		bank *bank
	}{{"Low", &h.low}, {"High", &h.high}}

	for _, b := range banks {
		obj := json.Name(b.name).Object()

		obj.Name("Mark").Int(b.bank.mark)
		obj.Name("Permanent").Int(b.bank.permanent)
		obj.Name("Temp").Int(b.bank.temp)
		obj.Name("TempHighwater").Int(b.bank.tempHighwater)

		obj.End()
	}
}
