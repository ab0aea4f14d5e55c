package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

// clusterResponse is the structured output requested from the model.
type clusterResponse struct {
	Clusters []clusterItem `json:"clusters" jsonschema:"description=Issue clusters found in this batch"`
}

type clusterItem struct {
	Title             string  `json:"title" jsonschema:"description=Short specific name for the issue"`
	RootCause         string  `json:"root_cause" jsonschema:"description=1-2 sentences on the probable root cause seen in this batch"`
	Severity          string  `json:"severity" jsonschema:"enum=critical,enum=high,enum=medium,enum=low"`
	TicketIDs         []int64 `json:"ticket_ids" jsonschema:"description=Ids of member tickets taken from the input"`
	GeographicPattern string  `json:"geographic_pattern" jsonschema:"description=Affected countries or regions, empty when none"`
	CategoryID        string  `json:"category_id" jsonschema:"description=Known category id, empty for a new issue"`
}

// rawCluster tolerates loosely typed model output.
type rawCluster struct {
	Title             string            `json:"title"`
	RootCause         string            `json:"root_cause"`
	Severity          string            `json:"severity"`
	TicketIDs         []json.RawMessage `json:"ticket_ids"`
	GeographicPattern *string           `json:"geographic_pattern"`
	CategoryID        *string           `json:"category_id"`
}

// errUndecodable marks content that is not a JSON object even after repair.
// The model may do better on another attempt.
var errUndecodable = errors.New("model output is not a JSON object")

var genericTitles = map[string]struct{}{
	"": {}, "misc": {}, "miscellaneous": {}, "other": {}, "others": {}, "general": {},
	"various": {}, "unknown": {}, "unknown trend": {}, "feedback": {}, "n/a": {},
}

// decodeClusters extracts the outermost JSON object from content and maps it
// onto raw clusters.
func decodeClusters(content string) ([]rawCluster, error) {
	obj, ok := extractObject(content)
	if !ok {
		return nil, errUndecodable
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &top); err != nil {
		return nil, fmt.Errorf("%w: %w", errUndecodable, err)
	}

	rawList, ok := top["clusters"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"clusters\"", model.ErrAnalysisParse)
	}
	if bytes.Equal(bytes.TrimSpace(rawList), []byte("null")) {
		return nil, nil
	}

	var clusters []rawCluster
	if err := json.Unmarshal(rawList, &clusters); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAnalysisParse, err)
	}
	return clusters, nil
}

// extractObject strips code fences and surrounding prose, returning the span
// from the first '{' to the last '}'.
func extractObject(content string) (string, bool) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// normalize turns raw clusters into ranked clusters that only reference known
// tickets, each ticket claimed by at most one cluster. It returns how many
// references were dropped.
func normalize(raw []rawCluster, known map[int64]struct{}, catalog *Catalog) ([]model.Cluster, int) {
	dropped := 0
	candidates := make([]model.Cluster, 0, len(raw))

	for _, rc := range raw {
		seen := make(map[int64]struct{}, len(rc.TicketIDs))
		ids := make([]int64, 0, len(rc.TicketIDs))
		for _, rawID := range rc.TicketIDs {
			id, ok := parseTicketID(rawID)
			if !ok {
				dropped++
				continue
			}
			if _, valid := known[id]; !valid {
				dropped++
				continue
			}
			if _, dup := seen[id]; dup {
				dropped++
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			continue
		}

		sev, _ := model.ParseSeverity(rc.Severity)
		cluster := model.Cluster{
			Title:     strings.TrimSpace(rc.Title),
			RootCause: strings.TrimSpace(rc.RootCause),
			TicketIDs: ids,
			Severity:  sev,
		}
		if rc.GeographicPattern != nil {
			cluster.GeographicPattern = cleanOptional(*rc.GeographicPattern)
		}
		if rc.CategoryID != nil {
			if cat, ok := catalog.Lookup(strings.TrimSpace(*rc.CategoryID)); ok {
				cluster.CategoryID = cat.ID
			}
		}
		cluster.Title = repairTitle(cluster, catalog)
		candidates = append(candidates, cluster)
	}

	model.SortClusters(candidates)

	claimed := make(map[int64]struct{})
	clusters := make([]model.Cluster, 0, len(candidates))
	for _, c := range candidates {
		ids := make([]int64, 0, len(c.TicketIDs))
		for _, id := range c.TicketIDs {
			if _, taken := claimed[id]; taken {
				dropped++
				continue
			}
			claimed[id] = struct{}{}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			continue
		}
		c.TicketIDs = ids
		clusters = append(clusters, c)
	}

	model.SortClusters(clusters)
	return clusters, dropped
}

func parseTicketID(raw json.RawMessage) (int64, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	s = strings.TrimPrefix(s, "#")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func repairTitle(c model.Cluster, catalog *Catalog) string {
	if _, generic := genericTitles[strings.ToLower(c.Title)]; !generic {
		return c.Title
	}
	if cat, ok := catalog.Lookup(c.CategoryID); ok {
		return cat.Title
	}
	return fmt.Sprintf("Unlabeled issue (%d tickets)", len(c.TicketIDs))
}

func cleanOptional(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "none", "n/a":
		return ""
	}
	return s
}
