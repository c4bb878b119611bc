// Package relay implements the paid gossip relay (C4): a duplex
// WebSocket connection speaking the public-key gossip wire protocol
// (EVENT/REQ/CLOSE/EOSE/OK message forms), a per-connection subscription
// registry with bounded backpressure, and the write gate that prices,
// authorizes, stores and broadcasts incoming events.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/paidmesh/paidmesh/pkg/message"
)

// wireFrame is an already-JSON-marshaled outbound frame, built once and
// then fanned out to every matching subscriber without re-marshaling per
// recipient.
type wireFrame struct {
	data []byte
}

func eventFrame(subID string, msg *message.SignedMessage) (wireFrame, error) {
	b, err := json.Marshal([3]interface{}{"EVENT", subID, msg})
	if err != nil {
		return wireFrame{}, err
	}
	return wireFrame{data: b}, nil
}

func eoseFrame(subID string) wireFrame {
	b, _ := json.Marshal([2]interface{}{"EOSE", subID})
	return wireFrame{data: b}
}

func okFrame(id string, accepted bool, reason string) wireFrame {
	b, _ := json.Marshal([4]interface{}{"OK", id, accepted, reason})
	return wireFrame{data: b}
}

// clientFrame is one decoded inbound frame. Exactly one of the typed
// fields is populated, selected by Kind.
type clientFrame struct {
	Kind string

	Event *message.SignedMessage

	SubID   string
	Filters []message.Filter

	CloseSubID string
}

// decodeClientFrame parses one JSON array frame per §6's wire forms.
func decodeClientFrame(raw []byte) (*clientFrame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("relay: malformed frame: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("relay: empty frame")
	}

	var kind string
	if err := json.Unmarshal(parts[0], &kind); err != nil {
		return nil, fmt.Errorf("relay: malformed frame kind: %w", err)
	}

	switch kind {
	case "EVENT":
		if len(parts) != 2 {
			return nil, fmt.Errorf("relay: EVENT frame wants 2 elements, got %d", len(parts))
		}
		var msg message.SignedMessage
		if err := json.Unmarshal(parts[1], &msg); err != nil {
			return nil, fmt.Errorf("relay: malformed event: %w", err)
		}
		return &clientFrame{Kind: "EVENT", Event: &msg}, nil

	case "REQ":
		if len(parts) < 2 {
			return nil, fmt.Errorf("relay: REQ frame wants at least a subscription id")
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return nil, fmt.Errorf("relay: malformed subscription id: %w", err)
		}
		filters := make([]message.Filter, 0, len(parts)-2)
		for _, fp := range parts[2:] {
			var wf wireFilter
			if err := json.Unmarshal(fp, &wf); err != nil {
				return nil, fmt.Errorf("relay: malformed filter: %w", err)
			}
			filters = append(filters, wf.toFilter())
		}
		return &clientFrame{Kind: "REQ", SubID: subID, Filters: filters}, nil

	case "CLOSE":
		if len(parts) != 2 {
			return nil, fmt.Errorf("relay: CLOSE frame wants 2 elements, got %d", len(parts))
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return nil, fmt.Errorf("relay: malformed subscription id: %w", err)
		}
		return &clientFrame{Kind: "CLOSE", CloseSubID: subID}, nil

	default:
		return nil, fmt.Errorf("relay: unknown frame kind %q", kind)
	}
}

// wireFilter is the JSON-on-the-wire shape of message.Filter: tag filters
// arrive as "#e", "#p", ... keys rather than a nested map, so it is
// decoded through this intermediate type and converted.
type wireFilter struct {
	IDs     []string            `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []uint16            `json:"kinds,omitempty"`
	Since   int64               `json:"since,omitempty"`
	Until   int64               `json:"until,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Tags    map[string][]string `json:"-"`
}

func (f *wireFilter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type plain wireFilter
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = wireFilter(p)

	f.Tags = make(map[string][]string)
	for key, v := range raw {
		if len(key) < 2 || key[0] != '#' {
			continue
		}
		var values []string
		if err := json.Unmarshal(v, &values); err != nil {
			return fmt.Errorf("relay: malformed tag filter %q: %w", key, err)
		}
		f.Tags[key[1:]] = values
	}
	return nil
}

func (f *wireFilter) toFilter() message.Filter {
	return message.Filter{
		IDs:     f.IDs,
		Authors: f.Authors,
		Kinds:   f.Kinds,
		Since:   f.Since,
		Until:   f.Until,
		Tags:    f.Tags,
		Limit:   f.Limit,
	}
}
