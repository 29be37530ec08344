// Package reindex keeps index entries fresh. It turns change notifications
// into debounced per-record reindex passes and runs criteria-based batch
// catch-up.
package reindex

import (
	"sort"
	"time"

	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/store"
)

// Trigger names why a record is reindexed. Richer triggers imply extra
// extraction work.
type Trigger string

const (
	TriggerCVUpload             Trigger = "cv-upload"
	TriggerCompetenceFileUpload Trigger = "competence-file-upload"
	TriggerCreate               Trigger = "create"
	TriggerSkillUpdate          Trigger = "skill-update"
	TriggerProfileUpdate        Trigger = "profile-update"
	TriggerUpdate               Trigger = "update"
	TriggerManual               Trigger = "manual"
)

var precedence = map[Trigger]int{
	TriggerCVUpload:             5,
	TriggerCompetenceFileUpload: 5,
	TriggerCreate:               4,
	TriggerSkillUpdate:          3,
	TriggerProfileUpdate:        3,
	TriggerUpdate:               2,
	TriggerManual:               1,
}

// ParseTrigger validates s. An empty string selects manual.
func ParseTrigger(s string) (Trigger, error) {
	if s == "" {
		return TriggerManual, nil
	}
	t := Trigger(s)
	if _, ok := precedence[t]; !ok {
		return "", errs.InvalidInput("unknown trigger %q", s)
	}
	return t, nil
}

// Outranks reports whether t has strictly higher precedence than other.
func (t Trigger) Outranks(other Trigger) bool {
	return precedence[t] > precedence[other]
}

// Event asks for one record to be reindexed.
type Event struct {
	Entity        store.EntityType
	RecordID      string
	Trigger       Trigger
	ChangedFields []string
	ObservedAt    time.Time
}

type recordKey struct {
	entity store.EntityType
	id     string
}

func (e *Event) key() recordKey {
	return recordKey{entity: e.Entity, id: e.RecordID}
}

func (e *Event) clone() *Event {
	c := *e
	c.ChangedFields = unionFields(nil, e.ChangedFields)
	return &c
}

// merge folds other into e: changed fields become the sorted union and the
// trigger is upgraded only by a strictly higher precedence, so ties keep the
// first seen.
func (e *Event) merge(other *Event) {
	e.ChangedFields = unionFields(e.ChangedFields, other.ChangedFields)
	if other.Trigger.Outranks(e.Trigger) {
		e.Trigger = other.Trigger
	}
	if other.ObservedAt.After(e.ObservedAt) {
		e.ObservedAt = other.ObservedAt
	}
}

func unionFields(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Changed-field names that imply a richer trigger for UPDATE notifications.
var (
	cvFields         = map[string]bool{"cv_url": true}
	competenceFields = map[string]bool{"competence_files": true, "competence_file_url": true}
	skillFields      = map[string]bool{
		"technical_skills": true,
		"soft_skills":      true,
		"certifications":   true,
		"required_skills":  true,
		"nice_to_have":     true,
		"technologies":     true,
	}
	profileFields = map[string]bool{
		"first_name":          true,
		"last_name":           true,
		"title":               true,
		"summary":             true,
		"experience":          true,
		"education":           true,
		"languages":           true,
		"years_of_experience": true,
		"location":            true,
	}
)

// EventFromNotification converts a store change notification. INSERT maps to
// create; UPDATE maps to update unless a changed field implies a richer
// trigger.
func EventFromNotification(n *store.ChangeNotification) *Event {
	e := &Event{
		Entity:        n.Entity,
		RecordID:      n.ID,
		Trigger:       TriggerUpdate,
		ChangedFields: unionFields(nil, n.ChangedFields),
		ObservedAt:    n.ReceivedAt,
	}
	if e.ObservedAt.IsZero() {
		e.ObservedAt = time.Now()
	}
	if n.Operation == store.OperationInsert {
		e.Trigger = TriggerCreate
		return e
	}
	for _, f := range e.ChangedFields {
		if t := fieldTrigger(f); t.Outranks(e.Trigger) {
			e.Trigger = t
		}
	}
	return e
}

func fieldTrigger(field string) Trigger {
	switch {
	case cvFields[field]:
		return TriggerCVUpload
	case competenceFields[field]:
		return TriggerCompetenceFileUpload
	case skillFields[field]:
		return TriggerSkillUpdate
	case profileFields[field]:
		return TriggerProfileUpdate
	default:
		return TriggerUpdate
	}
}
