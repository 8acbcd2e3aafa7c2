package usagerelev

// Reason is one relevance contribution: Mask marks the query token positions
// it matched and DB names the index that produced it.
type Reason struct {
	Relev float64
	Mask  uint32
	DB    string
}

// Usagerelev scores how much of query the reasons account for. Each token
// position is credited at most once and empty tokens are never credited. A
// reason from the same DB as the last credited reason is ignored. The result
// stays within [0,1] only when the reasons partition the query.
func Usagerelev(query []string, reasons []Reason) float64 {
	total := len(query)
	if total == 0 {
		return 0
	}
	claimed := make([]bool, total)
	for j, tok := range query {
		claimed[j] = tok == ""
	}
	relev := 0.0
	lastDB := ""
	haveLast := false
	for _, r := range reasons {
		if haveLast && r.DB == lastDB {
			continue
		}
		usage := 0
		for j := 0; j < total && j < 32; j++ {
			if r.Mask&(1<<j) != 0 && !claimed[j] {
				claimed[j] = true
				usage++
			}
		}
		if usage > 0 {
			relev += r.Relev * (float64(usage) / float64(total))
			lastDB = r.DB
			haveLast = true
		}
	}
	return relev
}
