package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func minutes(n int) *int { return &n }

func TestTotalDuration(t *testing.T) {
	require.Nil(t, TotalDuration(nil))
	require.Nil(t, TotalDuration([]Session{{}, {}}))

	total := TotalDuration([]Session{
		{DurationMinutes: minutes(90)},
		{},
		{DurationMinutes: minutes(45)},
	})
	require.NotNil(t, total)
	require.Equal(t, 135, *total)
}

func TestCollectivePrice(t *testing.T) {
	tests := []struct {
		name  string
		typ   EditionType
		total *int
		rate  int64
		want  *int64
	}{
		{"two hours", EditionCollective, minutes(120), 1500, ptr(int64(3000))},
		{"rounds up to the cent", EditionCollective, minutes(100), 1000, ptr(int64(1667))},
		{"individual has no price", EditionIndividual, minutes(120), 1500, nil},
		{"no durations", EditionCollective, nil, 1500, nil},
		{"no rate", EditionCollective, minutes(60), 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CollectivePrice(tt.typ, tt.total, tt.rate))
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestEditionCatalog_DateOption(t *testing.T) {
	optA, optB := uuid.New(), uuid.New()
	c := &EditionCatalog{Sessions: []SessionView{
		{Session: Session{Number: 1}, DateOptions: []DateOptionWithAvailability{{DateOption: DateOption{ID: optA}}}},
		{Session: Session{Number: 2}, DateOptions: []DateOptionWithAvailability{{DateOption: DateOption{ID: optB}}}},
	}}

	sess, opt, ok := c.DateOption(optB)
	require.True(t, ok)
	require.Equal(t, 2, sess.Number)
	require.Equal(t, optB, opt.ID)

	_, _, ok = c.DateOption(uuid.New())
	require.False(t, ok)
}

func TestEditionStructure_OptionIDs(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	st := EditionStructure{Sessions: []SessionWithOptions{
		{DateOptions: []DateOption{{ID: a}, {ID: b}}},
		{DateOptions: []DateOption{{ID: c}}},
		{},
	}}

	require.Equal(t, []uuid.UUID{a, b, c}, st.OptionIDs())
	require.Empty(t, EditionStructure{}.OptionIDs())
}
