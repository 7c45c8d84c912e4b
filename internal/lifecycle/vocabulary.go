package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/pkg/errors"
)

// Spec is the raw, versioned description of the status and priority vocabulary.
// It is loaded from configuration; DefaultSpec is used when nothing is configured.
type Spec struct {
	Version            int
	Initial            string
	Statuses           []string
	Terminal           []string
	Active             []string
	Assignable         []string
	RequiresAssignment []string
	SetsDeliveryDate   []string
	Transitions        map[string][]string
	// Aliases maps historical labels (renamed or retired) to current members.
	Aliases map[string]string

	Priorities      []string
	DefaultPriority string
}

func DefaultSpec() Spec {
	return Spec{
		Version:  3,
		Initial:  "PENDING",
		Statuses: []string{"PENDING", "ASSIGNED", "IN_TRANSIT", "DELIVERED", "CANCELLED", "RETURNED"},
		Terminal: []string{"DELIVERED", "CANCELLED", "RETURNED"},
		Active:   []string{"ASSIGNED", "IN_TRANSIT"},
		Assignable: []string{
			"PENDING", "ASSIGNED",
		},
		RequiresAssignment: []string{"ASSIGNED"},
		SetsDeliveryDate:   []string{"DELIVERED"},
		Transitions: map[string][]string{
			"PENDING":    {"ASSIGNED", "CANCELLED"},
			"ASSIGNED":   {"IN_TRANSIT", "CANCELLED"},
			"IN_TRANSIT": {"DELIVERED", "RETURNED", "CANCELLED"},
		},
		Aliases:         map[string]string{"IN_PROGRESS": "IN_TRANSIT"},
		Priorities:      []string{"LOW", "NORMAL", "HIGH", "URGENT"},
		DefaultPriority: "NORMAL",
	}
}

type statusSet map[models.Status]struct{}

func newStatusSet(labels []string) statusSet {
	s := make(statusSet, len(labels))
	for _, l := range labels {
		s[models.Status(l)] = struct{}{}
	}
	return s
}

func (s statusSet) has(st models.Status) bool {
	_, ok := s[st]
	return ok
}

// Vocabulary is the validated, immutable form of a Spec. Safe for concurrent use.
type Vocabulary struct {
	spec Spec

	members            statusSet
	terminal           statusSet
	active             statusSet
	assignable         statusSet
	requiresAssignment statusSet
	setsDeliveryDate   statusSet
	transitions        map[models.Status]statusSet
	aliases            map[string]models.Status
	priorities         map[models.Priority]struct{}
}

func NewVocabulary(spec Spec) (*Vocabulary, error) {
	v := &Vocabulary{
		spec:               spec,
		members:            newStatusSet(spec.Statuses),
		terminal:           newStatusSet(spec.Terminal),
		active:             newStatusSet(spec.Active),
		assignable:         newStatusSet(spec.Assignable),
		requiresAssignment: newStatusSet(spec.RequiresAssignment),
		setsDeliveryDate:   newStatusSet(spec.SetsDeliveryDate),
		transitions:        make(map[models.Status]statusSet, len(spec.Transitions)),
		aliases:            make(map[string]models.Status, len(spec.Aliases)),
		priorities:         make(map[models.Priority]struct{}, len(spec.Priorities)),
	}
	for from, tos := range spec.Transitions {
		v.transitions[models.Status(from)] = newStatusSet(tos)
	}
	for old, cur := range spec.Aliases {
		v.aliases[old] = models.Status(cur)
	}
	for _, p := range spec.Priorities {
		v.priorities[models.Priority(p)] = struct{}{}
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// MustDefault panics only if DefaultSpec itself is broken.
func MustDefault() *Vocabulary {
	v, err := NewVocabulary(DefaultSpec())
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Vocabulary) validate() error {
	if len(v.members) == 0 {
		return errors.New("vocabulary: no statuses")
	}
	if !v.members.has(models.Status(v.spec.Initial)) {
		return errors.Errorf("vocabulary: initial status %q is not a member", v.spec.Initial)
	}
	for name, set := range map[string]statusSet{
		"terminal":            v.terminal,
		"active":              v.active,
		"assignable":          v.assignable,
		"requires_assignment": v.requiresAssignment,
		"sets_delivery_date":  v.setsDeliveryDate,
	} {
		for st := range set {
			if !v.members.has(st) {
				return errors.Errorf("vocabulary: %s status %q is not a member", name, st)
			}
		}
	}
	for from, tos := range v.transitions {
		if !v.members.has(from) {
			return errors.Errorf("vocabulary: transition source %q is not a member", from)
		}
		if v.terminal.has(from) && len(tos) > 0 {
			return errors.Errorf("vocabulary: terminal status %q has outgoing transitions", from)
		}
		for to := range tos {
			if !v.members.has(to) {
				return errors.Errorf("vocabulary: transition %s -> %q targets a non-member", from, to)
			}
		}
	}
	for old, cur := range v.aliases {
		if v.members.has(models.Status(old)) {
			return errors.Errorf("vocabulary: alias %q shadows a member", old)
		}
		if !v.members.has(cur) {
			return errors.Errorf("vocabulary: alias %q points to non-member %q", old, cur)
		}
	}
	if len(v.priorities) == 0 {
		return errors.New("vocabulary: no priorities")
	}
	if _, ok := v.priorities[models.Priority(v.spec.DefaultPriority)]; !ok {
		return errors.Errorf("vocabulary: default priority %q is not a member", v.spec.DefaultPriority)
	}
	return nil
}

func (v *Vocabulary) Version() int { return v.spec.Version }

func (v *Vocabulary) Initial() models.Status { return models.Status(v.spec.Initial) }

func (v *Vocabulary) DefaultPriority() models.Priority {
	return models.Priority(v.spec.DefaultPriority)
}

// Parse accepts a current member or a historical alias and returns the canonical label.
func (v *Vocabulary) Parse(label string) (models.Status, error) {
	l := strings.ToUpper(strings.TrimSpace(label))
	if v.members.has(models.Status(l)) {
		return models.Status(l), nil
	}
	if cur, ok := v.aliases[l]; ok {
		return cur, nil
	}
	return "", errors.Wrapf(errs.ErrUnknownStatus, "%q (vocabulary v%d)", label, v.spec.Version)
}

// Normalize never fails: unknown stored labels are passed through so old data stays readable.
func (v *Vocabulary) Normalize(label string) models.Status {
	if st, err := v.Parse(label); err == nil {
		return st
	}
	return models.Status(label)
}

func (v *Vocabulary) Known(label string) bool {
	_, err := v.Parse(label)
	return err == nil
}

func (v *Vocabulary) ParsePriority(label string) (models.Priority, error) {
	l := models.Priority(strings.ToUpper(strings.TrimSpace(label)))
	if l == "" {
		return v.DefaultPriority(), nil
	}
	if _, ok := v.priorities[l]; !ok {
		return "", errors.Wrapf(errs.ErrUnknownPriority, "%q", label)
	}
	return l, nil
}

func (v *Vocabulary) CanTransition(from, to models.Status) bool {
	return v.transitions[from].has(to)
}

func (v *Vocabulary) IsTerminal(st models.Status) bool { return v.terminal.has(st) }

func (v *Vocabulary) IsActive(st models.Status) bool { return v.active.has(st) }

func (v *Vocabulary) IsAssignable(st models.Status) bool { return v.assignable.has(st) }

func (v *Vocabulary) RequiresAssignment(st models.Status) bool {
	return v.requiresAssignment.has(st)
}

func (v *Vocabulary) SetsDeliveryDate(st models.Status) bool {
	return v.setsDeliveryDate.has(st)
}

// ActiveStatuses is the exclusivity window used by the assignment resolver.
func (v *Vocabulary) ActiveStatuses() []models.Status { return sortedStatuses(v.active) }

func (v *Vocabulary) AssignableStatuses() []models.Status { return sortedStatuses(v.assignable) }

// StoredLabels expands statuses with every historical alias that maps onto them,
// for matching against labels persisted by older deployments.
func (v *Vocabulary) StoredLabels(sts []models.Status) []string {
	want := make(statusSet, len(sts))
	out := make([]string, 0, len(sts))
	for _, st := range sts {
		want[st] = struct{}{}
		out = append(out, string(st))
	}
	for old, cur := range v.aliases {
		if want.has(cur) {
			out = append(out, old)
		}
	}
	sort.Strings(out)
	return out
}

// CheckCompatibility returns stored labels that are neither members nor aliases.
func (v *Vocabulary) CheckCompatibility(stored []string) []string {
	var unknown []string
	seen := make(map[string]struct{}, len(stored))
	for _, l := range stored {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		if !v.Known(l) {
			unknown = append(unknown, l)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Description is what deployments publish so the dashboard and backend agree on labels.
type Description struct {
	Version         int                 `json:"version"`
	Initial         string              `json:"initial"`
	Statuses        []string            `json:"statuses"`
	Terminal        []string            `json:"terminal"`
	Active          []string            `json:"active"`
	Transitions     map[string][]string `json:"transitions"`
	Aliases         map[string]string   `json:"aliases,omitempty"`
	Priorities      []string            `json:"priorities"`
	DefaultPriority string              `json:"defaultPriority"`
}

func (v *Vocabulary) Describe() Description {
	d := Description{
		Version:         v.spec.Version,
		Initial:         v.spec.Initial,
		Statuses:        append([]string(nil), v.spec.Statuses...),
		Terminal:        append([]string(nil), v.spec.Terminal...),
		Active:          append([]string(nil), v.spec.Active...),
		Transitions:     make(map[string][]string, len(v.spec.Transitions)),
		Priorities:      append([]string(nil), v.spec.Priorities...),
		DefaultPriority: v.spec.DefaultPriority,
	}
	for from, tos := range v.spec.Transitions {
		d.Transitions[from] = append([]string(nil), tos...)
	}
	if len(v.spec.Aliases) > 0 {
		d.Aliases = make(map[string]string, len(v.spec.Aliases))
		for k, val := range v.spec.Aliases {
			d.Aliases[k] = val
		}
	}
	return d
}

func (v *Vocabulary) String() string {
	return fmt.Sprintf("vocabulary v%d (%d statuses)", v.spec.Version, len(v.members))
}

func sortedStatuses(s statusSet) []models.Status {
	out := make([]models.Status, 0, len(s))
	for st := range s {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
