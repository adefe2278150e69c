package accept

import "encoding/json"

// UnmarshalJSON accepts any of the three shapes spec.md allows for
// report/manual_approvals.json:
//
//	{"approved": ["id-or-selector", ...], "notes": "..."}
//	["id-or-selector", ...]
//	{"id-or-selector": true, ...}
func (m *ManualApprovals) UnmarshalJSON(b []byte) error {
	m.Approved = map[string]bool{}

	var obj struct {
		Approved []string `json:"approved"`
		Notes    string   `json:"notes"`
	}
	if err := json.Unmarshal(b, &obj); err == nil && obj.Approved != nil {
		for _, id := range obj.Approved {
			m.Approved[id] = true
		}
		m.Notes = obj.Notes
		return nil
	}

	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		for _, id := range list {
			m.Approved[id] = true
		}
		return nil
	}

	var record map[string]bool
	if err := json.Unmarshal(b, &record); err == nil {
		for id, v := range record {
			if v {
				m.Approved[id] = true
			}
		}
		return nil
	}

	return nil
}
