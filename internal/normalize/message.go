package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"arb-monitor/pkg/types"
)

// maxSearchDepth bounds the recursive payload search through wrapper objects.
const maxSearchDepth = 4

// Decode parses one raw frame. It returns an error only for invalid JSON;
// a well-formed payload that carries nothing usable yields (nil, nil).
func (n *Normalizer) Decode(data []byte) (*types.CanonicalMessage, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return n.NormalizeMessage(raw), nil
}

// NormalizeMessage classifies a decoded payload. A nil result means the
// message carries nothing usable and should be dropped.
func (n *Normalizer) NormalizeMessage(raw any) *types.CanonicalMessage {
	switch v := raw.(type) {
	case []any:
		return n.snapshot(v)
	case map[string]any:
		return n.classify(record(v))
	default:
		return nil
	}
}

func (n *Normalizer) classify(r record) *types.CanonicalMessage {
	typ := strings.ToLower(r.str(typeKeys))

	if _, ok := snapshotTypes[typ]; ok {
		arr, _ := findArray(r, 0)
		return n.snapshot(arr)
	}
	if _, ok := updateTypes[typ]; ok {
		if opp, ok := n.findOpportunity(r, 0); ok {
			return &types.CanonicalMessage{Kind: types.KindOpportunity, Timestamp: n.now(), Opportunity: &opp}
		}
		n.logger.Debug("update carried no usable opportunity", "type", typ)
		return n.heartbeat(r)
	}
	if _, ok := heartbeatTypes[typ]; ok {
		return n.heartbeat(r)
	}

	// Unknown type: look for something opportunity-shaped.
	if msg := n.bestEffort(r); msg != nil {
		return msg
	}
	n.logger.Debug("dropping message of unknown type", "type", typ)
	return nil
}

func (n *Normalizer) bestEffort(r record) *types.CanonicalMessage {
	if arr, ok := findArray(r, 0); ok {
		return n.snapshot(arr)
	}
	if opp, ok := n.NormalizeOpportunity(r); ok {
		return &types.CanonicalMessage{Kind: types.KindOpportunity, Timestamp: n.now(), Opportunity: &opp}
	}
	if opp, ok := n.findOpportunity(r, 0); ok {
		return &types.CanonicalMessage{Kind: types.KindOpportunity, Timestamp: n.now(), Opportunity: &opp}
	}
	return nil
}

func (n *Normalizer) heartbeat(r record) *types.CanonicalMessage {
	ts := n.now()
	for _, k := range heartbeatTSKeys {
		if t, ok := PlausibleTimestamp(r[k]); ok {
			ts = t
			break
		}
	}
	return &types.CanonicalMessage{Kind: types.KindHeartbeat, Timestamp: ts}
}

// snapshot normalizes every element, skipping the ones that fail.
func (n *Normalizer) snapshot(items []any) *types.CanonicalMessage {
	opps := make([]types.Opportunity, 0, len(items))
	dropped := 0
	for _, it := range items {
		rec, ok := it.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		opp, ok := n.NormalizeOpportunity(rec)
		if !ok {
			dropped++
			continue
		}
		opps = append(opps, opp)
	}
	if dropped > 0 {
		n.logger.Debug("snapshot records dropped", "dropped", dropped, "kept", len(opps))
	}
	return &types.CanonicalMessage{Kind: types.KindSnapshot, Timestamp: n.now(), Opportunities: opps}
}

// findArray returns the first array under a list key, searching nested
// wrapper objects breadth-first per level.
func findArray(r record, depth int) ([]any, bool) {
	if depth > maxSearchDepth {
		return nil, false
	}
	if arr, ok := r.list(listKeys); ok {
		return arr, true
	}
	for _, keys := range [][]string{listKeys, recordKeys, wrapperKeys} {
		for _, k := range keys {
			if sub, ok := asRecord(r[k]); ok {
				if arr, ok := findArray(sub, depth+1); ok {
					return arr, true
				}
			}
		}
	}
	return nil, false
}

// findOpportunity returns the first nested record that normalizes.
func (n *Normalizer) findOpportunity(r record, depth int) (types.Opportunity, bool) {
	if depth > maxSearchDepth {
		return types.Opportunity{}, false
	}
	for _, keys := range [][]string{recordKeys, wrapperKeys} {
		for _, k := range keys {
			sub, ok := asRecord(r[k])
			if !ok {
				continue
			}
			if opp, ok := n.NormalizeOpportunity(sub); ok {
				return opp, true
			}
			if opp, ok := n.findOpportunity(sub, depth+1); ok {
				return opp, true
			}
		}
	}
	return types.Opportunity{}, false
}
