package lifecycle

import (
	"testing"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDefaultVocabulary_Valid(t *testing.T) {
	v, err := NewVocabulary(DefaultSpec())
	require.NoError(t, err)
	require.Equal(t, 3, v.Version())
	require.Equal(t, models.StatusPending, v.Initial())
	require.Equal(t, models.PriorityNormal, v.DefaultPriority())
	require.Equal(t, []models.Status{models.StatusAssigned, models.StatusInTransit}, v.ActiveStatuses())
}

func TestVocabulary_ParseAliasAndUnknown(t *testing.T) {
	v := MustDefault()

	st, err := v.Parse("in_transit")
	require.NoError(t, err)
	require.Equal(t, models.StatusInTransit, st)

	st, err = v.Parse("IN_PROGRESS")
	require.NoError(t, err)
	require.Equal(t, models.StatusInTransit, st)

	_, err = v.Parse("LOST")
	require.ErrorIs(t, err, errs.ErrUnknownStatus)
	require.Equal(t, errs.KindValidation, errs.KindOf(err))

	require.Equal(t, models.Status("LOST"), v.Normalize("LOST"))
}

func TestVocabulary_Priorities(t *testing.T) {
	v := MustDefault()

	p, err := v.ParsePriority("urgent")
	require.NoError(t, err)
	require.Equal(t, models.PriorityUrgent, p)

	p, err = v.ParsePriority("")
	require.NoError(t, err)
	require.Equal(t, models.PriorityNormal, p)

	_, err = v.ParsePriority("ASAP")
	require.ErrorIs(t, err, errs.ErrUnknownPriority)
}

func TestVocabulary_ValidateRejectsBrokenSpecs(t *testing.T) {
	cases := map[string]func(s *Spec){
		"initial not member":       func(s *Spec) { s.Initial = "NEW" },
		"terminal with edges":      func(s *Spec) { s.Transitions["DELIVERED"] = []string{"RETURNED"} },
		"target not member":        func(s *Spec) { s.Transitions["PENDING"] = []string{"IN_PROGRESS"} },
		"alias shadows member":     func(s *Spec) { s.Aliases = map[string]string{"PENDING": "ASSIGNED"} },
		"alias to non member":      func(s *Spec) { s.Aliases = map[string]string{"OLD": "GONE"} },
		"default priority missing": func(s *Spec) { s.DefaultPriority = "MEDIUM" },
		"no statuses":              func(s *Spec) { s.Statuses = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := DefaultSpec()
			mutate(&s)
			_, err := NewVocabulary(s)
			require.Error(t, err)
		})
	}
}

func TestVocabulary_RenamedStatusKeepsOldDataReadable(t *testing.T) {
	// v2 data used IN_PROGRESS and had no RETURNED.
	v := MustDefault()
	unknown := v.CheckCompatibility([]string{"PENDING", "IN_PROGRESS", "DELIVERED", "IN_PROGRESS", "ON_HOLD"})
	require.Equal(t, []string{"ON_HOLD"}, unknown)

	s := DefaultSpec()
	s.Version = 2
	s.Statuses = []string{"PENDING", "ASSIGNED", "IN_TRANSIT", "DELIVERED", "CANCELLED"}
	s.Terminal = []string{"DELIVERED", "CANCELLED"}
	s.Transitions["IN_TRANSIT"] = []string{"DELIVERED", "CANCELLED"}
	v2, err := NewVocabulary(s)
	require.NoError(t, err)
	require.Equal(t, []string{"RETURNED"}, v2.CheckCompatibility([]string{"RETURNED", "IN_PROGRESS"}))
}

func TestVocabulary_Describe(t *testing.T) {
	v := MustDefault()
	d := v.Describe()
	require.Equal(t, 3, d.Version)
	require.Equal(t, "PENDING", d.Initial)
	require.Contains(t, d.Statuses, "RETURNED")
	require.Equal(t, []string{"ASSIGNED", "CANCELLED"}, d.Transitions["PENDING"])
	require.Equal(t, "IN_TRANSIT", d.Aliases["IN_PROGRESS"])

	// mutating the description must not leak into the vocabulary
	d.Transitions["PENDING"][0] = "DELIVERED"
	require.False(t, v.CanTransition(models.StatusPending, models.StatusDelivered))
	require.Equal(t, []string{"ASSIGNED", "CANCELLED"}, v.Describe().Transitions["PENDING"])
}

func TestVocabulary_StoredLabelsIncludeAliases(t *testing.T) {
	v := MustDefault()
	require.Equal(t, []string{"ASSIGNED", "IN_PROGRESS", "IN_TRANSIT"}, v.StoredLabels(v.ActiveStatuses()))
	require.Equal(t, []string{"PENDING"}, v.StoredLabels([]models.Status{models.StatusPending}))
}
