package zone

import "github.com/launchdarkly/go-jsonstream/v3/jwriter"

// BlockListJson populates a json object with this zone's totals and every
// block in physical order, separators included.
func (z *Zone) BlockListJson(json jwriter.ObjectState) {
	json.Name("Name").String(z.name)
	json.Name("TotalBytes").Int(z.size)
	json.Name("UsedBytes").Int(z.used)
	json.Name("Segments").Int(len(z.segments))
	json.Name("Allocations").Int(z.allocCount)

	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	for b := z.blockList.next; b != &z.blockList; b = b.next {
		obj := arrayState.Object()

		obj.Name("Offset").Int(b.offset)
		obj.Name("Size").Int(b.size)
		obj.Name("Tag").String(b.tag.String())
		if b.id == -zoneID {
			obj.Name("Separator").Bool(true)
		}

		obj.End()
	}
}
