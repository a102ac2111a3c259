// Package reconcile decides whether a label reported by a recognizer counts as
// a detection of a requested target entity category.
//
// Recognizer backends use different vocabularies for the same thing (a NER
// model says "PER", the engine asks for "PERSON"). Equivalence groups map
// between the two and are plain data, overridable per run.
package reconcile

import (
	"fmt"
	"os"

	"github.com/ppiankov/deidentify/internal/model"
	"gopkg.in/yaml.v3"
)

// Reconciler matches raw recognizer labels against target categories
type Reconciler struct {
	groups []model.EquivalenceGroup
}

// DefaultGroups returns the built-in equivalence groups.
// MISC is deliberately absent: it does not correspond to a PII category.
func DefaultGroups() []model.EquivalenceGroup {
	return []model.EquivalenceGroup{
		{Targets: []string{"LOCATION"}, Labels: []string{"LOC", "LOCATION", "GPE"}},
		{Targets: []string{"PERSON"}, Labels: []string{"PER", "PERSON"}},
		{Targets: []string{"ORGANIZATION"}, Labels: []string{"ORG", "ORGANIZATION"}},
		{Targets: []string{"EMAIL_ADDRESS"}, Labels: []string{"EMAIL_ADDRESS", "EMAIL"}},
		{Targets: []string{"PHONE_NUMBER"}, Labels: []string{"PHONE_NUMBER", "PHONE"}},
		{Targets: []string{"CREDIT_CARD"}, Labels: []string{"CREDIT_CARD"}},
		{Targets: []string{"IBAN_CODE"}, Labels: []string{"IBAN_CODE", "IBAN"}},
		{Targets: []string{"IP_ADDRESS"}, Labels: []string{"IP_ADDRESS"}},
		{Targets: []string{"US_SSN"}, Labels: []string{"US_SSN", "SSN"}},
	}
}

// New creates a Reconciler. A nil or empty group list selects DefaultGroups.
func New(groups []model.EquivalenceGroup) *Reconciler {
	if len(groups) == 0 {
		groups = DefaultGroups()
	}
	return &Reconciler{groups: groups}
}

// Groups returns the groups in evaluation order
func (r *Reconciler) Groups() []model.EquivalenceGroup {
	return r.groups
}

// Matches reports whether rawLabel counts as an instance of target.
// Groups are scanned in order; the first group containing both wins.
func (r *Reconciler) Matches(target, rawLabel string) bool {
	for _, g := range r.groups {
		if contains(g.Targets, target) && contains(g.Labels, rawLabel) {
			return true
		}
	}
	return false
}

// Resolve returns the first of targets that rawLabel matches
func (r *Reconciler) Resolve(rawLabel string, targets []string) (string, bool) {
	for _, target := range targets {
		if r.Matches(target, rawLabel) {
			return target, true
		}
	}
	return "", false
}

// Targets returns every target category named by at least one group, in
// first-seen order.
func (r *Reconciler) Targets() []string {
	seen := make(map[string]bool)
	var targets []string
	for _, g := range r.groups {
		for _, t := range g.Targets {
			if !seen[t] {
				seen[t] = true
				targets = append(targets, t)
			}
		}
	}
	return targets
}

type groupFile struct {
	EquivalenceGroups []model.EquivalenceGroup `yaml:"equivalence_groups"`
}

// ParseGroups parses equivalence groups from YAML of the form
//
//	equivalence_groups:
//	  - targets: [PERSON]
//	    labels: [PER, PERSON]
func ParseGroups(data []byte) ([]model.EquivalenceGroup, error) {
	var f groupFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse equivalence groups: %w", err)
	}
	for i, g := range f.EquivalenceGroups {
		if len(g.Targets) == 0 || len(g.Labels) == 0 {
			return nil, fmt.Errorf("equivalence group %d: targets and labels must both be non-empty", i)
		}
	}
	return f.EquivalenceGroups, nil
}

// LoadGroups reads equivalence groups from a YAML file
func LoadGroups(path string) ([]model.EquivalenceGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read equivalence groups %s: %w", path, err)
	}
	return ParseGroups(data)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
