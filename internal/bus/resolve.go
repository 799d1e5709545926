package bus

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Strategy names a conflict-resolution policy for competing results.
type Strategy string

const (
	StrategyConsensus      Strategy = "consensus"
	StrategyMajority       Strategy = "majority"
	StrategyExpertPriority Strategy = "expert_priority"
)

// Candidate is one agent's result entering conflict resolution.
type Candidate struct {
	AgentID  string                 `json:"agent_id"`
	Result   map[string]interface{} `json:"result"`
	Priority int                    `json:"priority"` // expertise weight for expert_priority
}

// Resolution is the resolved result with its confidence score: the
// mean agreement of all candidates with the chosen result, 0 when
// undefined.
type Resolution struct {
	Strategy   Strategy               `json:"strategy"`
	Result     map[string]interface{} `json:"result"`
	Confidence float64                `json:"confidence"`
	ChosenFrom string                 `json:"chosen_from,omitempty"`
}

// Resolve reconciles competing results under the given strategy.
func Resolve(candidates []Candidate, strategy Strategy) (*Resolution, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates to resolve")
	}

	var res *Resolution
	switch strategy {
	case StrategyConsensus:
		res = resolveConsensus(candidates)
	case StrategyMajority:
		res = resolveMajority(candidates)
	case StrategyExpertPriority:
		res = resolveExpert(candidates)
	default:
		return nil, fmt.Errorf("unknown resolution strategy: %s", strategy)
	}

	res.Strategy = strategy
	res.Confidence = confidence(candidates, res.Result)
	return res, nil
}

// resolveConsensus keeps the keys every candidate agrees on. An empty
// intersection falls back to the first candidate unchanged.
func resolveConsensus(candidates []Candidate) *Resolution {
	first := candidates[0]
	agreed := make(map[string]interface{})

	for k, v := range first.Result {
		all := true
		for _, c := range candidates[1:] {
			other, ok := c.Result[k]
			if !ok || !valuesEqual(v, other) {
				all = false
				break
			}
		}
		if all {
			agreed[k] = v
		}
	}

	if len(agreed) == 0 {
		return &Resolution{Result: first.Result, ChosenFrom: first.AgentID}
	}
	return &Resolution{Result: agreed}
}

// resolveMajority picks the most frequent result by canonical
// serialization; ties break toward the earliest candidate.
func resolveMajority(candidates []Candidate) *Resolution {
	counts := make(map[string]int)
	firstIdx := make(map[string]int)

	for i, c := range candidates {
		key := canonical(c.Result)
		counts[key]++
		if _, seen := firstIdx[key]; !seen {
			firstIdx[key] = i
		}
	}

	bestKey := ""
	for key := range counts {
		if bestKey == "" {
			bestKey = key
			continue
		}
		if counts[key] > counts[bestKey] ||
			(counts[key] == counts[bestKey] && firstIdx[key] < firstIdx[bestKey]) {
			bestKey = key
		}
	}

	winner := candidates[firstIdx[bestKey]]
	return &Resolution{Result: winner.Result, ChosenFrom: winner.AgentID}
}

// resolveExpert picks the candidate with the highest priority; ties
// break toward the earliest candidate.
func resolveExpert(candidates []Candidate) *Resolution {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Priority > best.Priority {
			best = c
		}
	}
	return &Resolution{Result: best.Result, ChosenFrom: best.AgentID}
}

// confidence averages per-candidate agreement with the chosen result:
// the share of keys common to both that carry equal values. Candidates
// sharing no keys contribute 0.
func confidence(candidates []Candidate, chosen map[string]interface{}) float64 {
	if len(candidates) == 0 || len(chosen) == 0 {
		return 0
	}

	var total float64
	for _, c := range candidates {
		common := 0
		matching := 0
		for k, v := range chosen {
			other, ok := c.Result[k]
			if !ok {
				continue
			}
			common++
			if valuesEqual(v, other) {
				matching++
			}
		}
		if common > 0 {
			total += float64(matching) / float64(common)
		}
	}
	return total / float64(len(candidates))
}

// canonical serializes a result with sorted keys so equal maps compare
// equal as strings.
func canonical(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		v, _ := json.Marshal(m[k])
		out += fmt.Sprintf("%q:%s", k, v)
	}
	return out + "}"
}

func valuesEqual(a, b interface{}) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
	return string(ja) == string(jb)
}
