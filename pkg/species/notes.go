package species

import "strings"

// noteRule attaches field notes to species whose common name contains
// one of the keywords. Rules are checked in order; the first hit wins.
type noteRule struct {
	keywords   []string
	seasonal   string
	behavioral string
}

var noteRules = []noteRule{
	{
		keywords:   []string{"warbler", "vireo", "tanager"},
		seasonal:   "Peak migration in spring and fall",
		behavioral: "Forages in the canopy; most active in the first hours after sunrise",
	},
	{
		keywords:   []string{"owl"},
		seasonal:   "Present year-round; most vocal in late winter",
		behavioral: "Largely nocturnal; listen for calls at dusk and before dawn",
	},
	{
		keywords:   []string{"duck", "goose", "swan", "teal", "merganser", "scaup", "wigeon"},
		seasonal:   "Numbers peak in late fall and winter",
		behavioral: "Scan open water, sheltered coves and flooded fields",
	},
	{
		keywords:   []string{"hawk", "eagle", "falcon", "kite", "harrier"},
		seasonal:   "Migration counts peak in fall",
		behavioral: "Soars on midday thermals; watch ridgelines and open country",
	},
	{
		keywords:   []string{"hummingbird"},
		seasonal:   "Summer resident in most areas; departs by early fall",
		behavioral: "Visits feeders and flowering plants; defends favored perches",
	},
	{
		keywords:   []string{"sandpiper", "plover", "godwit", "dowitcher", "yellowlegs", "dunlin", "sanderling"},
		seasonal:   "Migration peaks in late summer",
		behavioral: "Works mudflats and shorelines; time visits to low tide",
	},
	{
		keywords:   []string{"sparrow", "junco", "towhee"},
		seasonal:   "Winter flocks are easiest to find",
		behavioral: "Stays low in brush piles, hedgerows and field edges",
	},
	{
		keywords:   []string{"woodpecker", "sapsucker", "flicker"},
		seasonal:   "Present year-round",
		behavioral: "Listen for drumming on dead snags, especially in the morning",
	},
	{
		keywords:   []string{"crane"},
		seasonal:   "Staging flocks gather in spring and fall",
		behavioral: "Feeds in open fields by day, returns to roost wetlands at dusk",
	},
	{
		keywords:   []string{"tern", "gull", "skimmer"},
		seasonal:   "Coastal concentrations peak in late summer",
		behavioral: "Loafs on sandbars, jetties and beach flats",
	},
	{
		keywords:   []string{"heron", "egret", "bittern", "ibis"},
		seasonal:   "Post-breeding dispersal brings wanderers in late summer",
		behavioral: "Stalks shallow margins of ponds and marshes; scan edges slowly",
	},
	{
		keywords:   []string{"thrush"},
		seasonal:   "Moves through quietly in spring and fall",
		behavioral: "Forages on the forest floor; often detected by song at dawn",
	},
}

// fieldNotes returns seasonal and behavioral notes for a common name,
// or empty strings when no rule matches.
func fieldNotes(commonName string) (seasonal, behavioral string) {
	lower := strings.ToLower(commonName)
	for _, r := range noteRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.seasonal, r.behavioral
			}
		}
	}
	return "", ""
}
