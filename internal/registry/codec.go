package registry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/aura-hire/internal/candidate"
)

var statusType = reflect.TypeOf(candidate.Status(""))

func encodeCandidates(candidates map[string]candidate.Candidate) ([]byte, error) {
	return json.Marshal(candidates)
}

// decodeCandidates reads the stored blob leniently: numbers written as strings
// and compact status identifiers are accepted, unknown fields are ignored.
func decodeCandidates(data []byte) (map[string]candidate.Candidate, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse candidates blob: %w", err)
	}

	decoded := make(map[string]candidate.Candidate, len(raw))
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       statusHook,
		WeaklyTypedInput: true,
		Result:           &decoded,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}

	for id, c := range decoded {
		if c.ID == "" {
			c.ID = id
		}
		if c.ID != id {
			return nil, fmt.Errorf("candidate stored under %q carries id %q", id, c.ID)
		}
		if c.Status == "" {
			c.Status = candidate.StatusPendingInterview
		}
		if !c.Status.Valid() {
			return nil, fmt.Errorf("candidate %q has unknown status %q", id, c.Status)
		}
		if c.LastActive < c.CreatedAt {
			c.LastActive = c.CreatedAt
		}
		decoded[id] = c
	}

	assignMissingSeq(decoded)
	return decoded, nil
}

func statusHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != statusType || from.Kind() != reflect.String {
		return data, nil
	}

	s, _ := data.(string)
	if s == "" {
		return data, nil
	}

	status, err := candidate.ParseStatus(s)
	if err != nil {
		return nil, err
	}
	return string(status), nil
}

// assignMissingSeq numbers records written before sequence numbers existed,
// after every numbered record, oldest first.
func assignMissingSeq(candidates map[string]candidate.Candidate) {
	var (
		unnumbered []candidate.Candidate
		maxSeq     uint64
	)

	for _, c := range candidates {
		if c.Seq == 0 {
			unnumbered = append(unnumbered, c)
			continue
		}
		if c.Seq > maxSeq {
			maxSeq = c.Seq
		}
	}

	sort.Slice(unnumbered, func(i, j int) bool {
		if unnumbered[i].CreatedAt != unnumbered[j].CreatedAt {
			return unnumbered[i].CreatedAt < unnumbered[j].CreatedAt
		}
		return unnumbered[i].ID < unnumbered[j].ID
	})

	next := maxSeq + 1
	for _, c := range unnumbered {
		c.Seq = next
		candidates[c.ID] = c
		next++
	}
}

func restoreCounters(candidates map[string]candidate.Candidate) (lastTick int64, nextSeq uint64) {
	nextSeq = 1
	for _, c := range candidates {
		if c.CreatedAt > lastTick {
			lastTick = c.CreatedAt
		}
		if c.LastActive > lastTick {
			lastTick = c.LastActive
		}
		if c.Seq+1 > nextSeq {
			nextSeq = c.Seq + 1
		}
	}
	return lastTick, nextSeq
}
